package zkterm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserNarrow(t *testing.T) {
	rec := mustPack(userNarrowFormat,
		[]interface{}{1, 0, "", "Alice", 0, 0, 0, 0, 1})
	require.Len(t, rec, userPacketNarrow)

	user, err := parseUser(rec, userPacketNarrow)
	require.NoError(t, err)
	assert.Equal(t, 1, user.UID)
	assert.Equal(t, 0, user.Privilege)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "1", user.UserID)
	assert.False(t, user.Disabled())
	assert.False(t, user.Admin())
}

func TestParseUserWide(t *testing.T) {
	rec := mustPack(userWideFormat,
		[]interface{}{77, USER_ADMIN, "4321", "Somsri", 9876543, 0, "2", 0, "EMP-0077"})
	require.Len(t, rec, userPacketWide)

	user, err := parseUser(rec, userPacketWide)
	require.NoError(t, err)
	assert.Equal(t, 77, user.UID)
	assert.Equal(t, "Somsri", user.Name)
	assert.Equal(t, "EMP-0077", user.UserID)
	assert.Equal(t, "9876543", user.Card)
	assert.Equal(t, "2", user.GroupID)
	assert.True(t, user.Admin())
}

func TestUserRecordRoundTrip(t *testing.T) {
	user := User{
		UID:       12,
		UserID:    "12",
		Name:      "Siwapong",
		Privilege: USER_DEFAULT,
		Password:  "1234",
		GroupID:   "1",
		Card:      "55443",
	}
	for _, size := range []int{userPacketNarrow, userPacketWide} {
		rec, err := makeUserRecord(user, size)
		require.NoError(t, err)
		require.Len(t, rec, size)

		got, err := parseUser(rec, size)
		require.NoError(t, err)
		assert.Equal(t, user.UID, got.UID)
		assert.Equal(t, user.UserID, got.UserID)
		assert.Equal(t, user.Name, got.Name)
		assert.Equal(t, user.Card, got.Card)
		assert.Equal(t, user.GroupID, got.GroupID)
	}
}

func TestMakeUserRecordNarrowNeedsNumericID(t *testing.T) {
	_, err := makeUserRecord(User{UID: 1, UserID: "EMP-1"}, userPacketNarrow)
	assert.ErrorIs(t, err, ErrOperation)
}

func TestMakeUserRecordNarrowGroupBytes(t *testing.T) {
	rec, err := makeUserRecord(User{UID: 1, UserID: "1", GroupID: "3"}, userPacketNarrow)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rec[21])
	assert.EqualValues(t, 0, rec[22])
	assert.EqualValues(t, 0, rec[23])
}

func TestMakePackedUserRecord(t *testing.T) {
	rec, err := makePackedUserRecord(User{UID: 9, UserID: "9", Name: "N"}, userPacketWide)
	require.NoError(t, err)
	require.Len(t, rec, userPacketWide+1)
	assert.EqualValues(t, 0x02, rec[0])
}

func TestParseAttendance8(t *testing.T) {
	ts := time.Date(2024, time.May, 17, 10, 30, 45, 0, time.UTC)
	rec := mustPack([]string{"H", "B", "I", "B"},
		[]interface{}{5, 1, encodeTime(ts), 0})
	require.Len(t, rec, 8)

	att, err := parseAttendance(rec, 8, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 5, att.UID)
	assert.Equal(t, 1, att.Status)
	assert.Equal(t, 0, att.Punch)
	assert.Equal(t, ts, att.AttendedAt)
}

func TestParseAttendance16(t *testing.T) {
	ts := time.Date(2023, time.November, 2, 8, 0, 1, 0, time.UTC)
	rec := mustPack([]string{"I", "I", "B", "B"},
		[]interface{}{100123, encodeTime(ts), 4, 1})
	rec = append(rec, make([]byte, 6)...)
	require.Len(t, rec, 16)

	att, err := parseAttendance(rec, 16, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "100123", att.UserID)
	assert.Equal(t, 4, att.Status)
	assert.Equal(t, 1, att.Punch)
	assert.Equal(t, ts, att.AttendedAt)
}

func TestParseAttendance40(t *testing.T) {
	ts := time.Date(2022, time.June, 30, 17, 45, 0, 0, time.UTC)
	rec := mustPack([]string{"H", "24s", "B", "I", "B"},
		[]interface{}{7, "EMP-0007", 2, encodeTime(ts), 5})
	rec = append(rec, make([]byte, 8)...)
	require.Len(t, rec, 40)

	att, err := parseAttendance(rec, 40, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 7, att.UID)
	assert.Equal(t, "EMP-0007", att.UserID)
	assert.Equal(t, 2, att.Status)
	assert.Equal(t, 5, att.Punch)
	assert.Equal(t, ts, att.AttendedAt)
}

func TestParseSizes(t *testing.T) {
	values := make([]interface{}, 20)
	for i := range values {
		values[i] = 0
	}
	values[4] = 12   // users
	values[6] = 20   // fingers
	values[8] = 300  // records
	values[12] = 4   // cards
	values[14] = 200 // finger capacity
	values[15] = 100 // user capacity
	values[16] = 5000
	values[17] = 180
	values[18] = 88
	values[19] = 4700
	pad := make([]string, 20)
	for i := range pad {
		pad[i] = "i"
	}
	data := mustPack(pad, values)

	c, err := parseSizes(data)
	require.NoError(t, err)
	assert.Equal(t, 12, c.Users)
	assert.Equal(t, 20, c.Fingers)
	assert.Equal(t, 300, c.Records)
	assert.Equal(t, 4, c.Cards)
	assert.Equal(t, 200, c.FingersCap)
	assert.Equal(t, 100, c.UsersCap)
	assert.Equal(t, 5000, c.RecordsCap)
	assert.Equal(t, 180, c.FingersAv)
	assert.Equal(t, 88, c.UsersAv)
	assert.Equal(t, 4700, c.RecordsAv)
	assert.Equal(t, 0, c.Faces)

	// Face counters live at offsets 80 and 88 when the block is long
	// enough.
	data = append(data, mustPack([]string{"i", "i", "i"}, []interface{}{3, 0, 50})...)
	c, err = parseSizes(data)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Faces)
	assert.Equal(t, 50, c.FacesCap)
}

func TestParseSizesShort(t *testing.T) {
	_, err := parseSizes(make([]byte, 16))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestBuildSaveUserTemplates(t *testing.T) {
	pairs := []UserTemplates{{
		User: User{UID: 3, UserID: "3", Name: "Anan"},
		Templates: []Template{
			{UID: 3, FingerID: 0, Valid: 1, Template: []byte{0xAA, 0xBB, 0xCC}},
			{UID: 3, FingerID: 5, Valid: 1, Template: []byte{0x11, 0x22}},
		},
	}}
	buf, err := buildSaveUserTemplates(pairs, userPacketNarrow)
	require.NoError(t, err)

	head := mustUnpack([]string{"I", "I", "I"}, buf[:12])
	usersLen := head[0].(int)
	tableLen := head[1].(int)
	fpsLen := head[2].(int)
	assert.Equal(t, userPacketNarrow+1, usersLen)
	assert.Equal(t, 16, tableLen) // two 8-byte index entries
	assert.Equal(t, (3+2)+(2+2), fpsLen)
	require.Len(t, buf, 12+usersLen+tableLen+fpsLen)

	table := buf[12+usersLen : 12+usersLen+tableLen]
	first := mustUnpack([]string{"B", "H", "B", "I"}, table[:8])
	assert.Equal(t, 2, first[0].(int))
	assert.Equal(t, 3, first[1].(int))
	assert.Equal(t, 0x10, first[2].(int))
	assert.Equal(t, 0, first[3].(int))
	second := mustUnpack([]string{"B", "H", "B", "I"}, table[8:16])
	assert.Equal(t, 0x10+5, second[2].(int))
	assert.Equal(t, 5, second[3].(int)) // past the first length-prefixed blob

	fps := buf[12+usersLen+tableLen:]
	assert.Equal(t, 5, mustUnpack([]string{"H"}, fps[:2])[0].(int))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, fps[2:5])
}

func TestParseTemplates(t *testing.T) {
	blob := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	entry := mustPack([]string{"H", "H", "b", "b"}, []interface{}{6 + len(blob), 4, 1, 1})
	entry = append(entry, blob...)
	entry2 := mustPack([]string{"H", "H", "b", "b"}, []interface{}{6, 9, 0, 1})

	templates, err := parseTemplates(append(entry, entry2...))
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, 4, templates[0].UID)
	assert.Equal(t, 1, templates[0].FingerID)
	assert.Equal(t, blob, templates[0].Template)
	assert.Equal(t, 9, templates[1].UID)
	assert.Empty(t, templates[1].Template)
}

func TestParseTemplatesBadSize(t *testing.T) {
	entry := mustPack([]string{"H", "H", "b", "b"}, []interface{}{200, 4, 1, 1})
	_, err := parseTemplates(entry)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestTrimTemplate(t *testing.T) {
	data := []byte{0x01, 0x02, 0, 0, 0, 0, 0, 0, 0xFF}
	assert.Equal(t, []byte{0x01, 0x02}, trimTemplate(data))
	assert.Equal(t, []byte{0x01, 0x02}, trimTemplate([]byte{0x01, 0x02, 0xFF}))
}
