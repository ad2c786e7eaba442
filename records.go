package zkterm

import (
	"fmt"
	"strconv"
	"time"
)

// Narrow (28-byte) user layout: uid 0:2, privilege 2:1, password 3:5,
// name 8:8, card 16:4, reserved 20:1, group 21:1, reserved 22:2,
// user-id-number 24:4. Wide (72-byte): uid 0:2, privilege 2:1, password 3:8,
// name 11:24, card 35:4, reserved 39:1, group 40:7, reserved 47:1,
// user-id 48:24.
var (
	userNarrowFormat = []string{"H", "B", "5s", "8s", "I", "B", "B", "H", "I"}
	userWideFormat   = []string{"H", "B", "8s", "24s", "I", "B", "7s", "B", "24s"}
)

func parseUser(data []byte, packetSize int) (*User, error) {
	if len(data) < packetSize {
		return nil, fmt.Errorf("user record %d bytes, want %d: %w", len(data), packetSize, ErrProtocol)
	}
	user := &User{}
	switch packetSize {
	case userPacketNarrow:
		v, err := newBP().UnPack(userNarrowFormat, data[:userPacketNarrow])
		if err != nil {
			return nil, err
		}
		user.UID = v[0].(int)
		user.Privilege = v[1].(int)
		user.Password = decodeDeviceString([]byte(v[2].(string)))
		user.Name = decodeDeviceString([]byte(v[3].(string)))
		user.Card = strconv.Itoa(v[4].(int))
		user.GroupID = strconv.Itoa(v[6].(int))
		user.UserID = strconv.Itoa(v[8].(int))
	case userPacketWide:
		v, err := newBP().UnPack(userWideFormat, data[:userPacketWide])
		if err != nil {
			return nil, err
		}
		user.UID = v[0].(int)
		user.Privilege = v[1].(int)
		user.Password = decodeDeviceString([]byte(v[2].(string)))
		user.Name = decodeDeviceString([]byte(v[3].(string)))
		user.Card = strconv.Itoa(v[4].(int))
		user.GroupID = decodeDeviceString([]byte(v[6].(string)))
		user.UserID = decodeDeviceString([]byte(v[8].(string)))
	default:
		return nil, fmt.Errorf("user record width %d: %w", packetSize, ErrProtocol)
	}
	if user.Name == "" {
		user.Name = user.UserID
	}
	return user, nil
}

// makeUserRecord packs a user for CMD_USER_WRQ in the layout the device
// advertised. Group byte 21 of the narrow layout is authoritative, the two
// bytes after it stay zero.
func makeUserRecord(user User, packetSize int) ([]byte, error) {
	card, _ := strconv.Atoi(user.Card)
	group, _ := strconv.Atoi(user.GroupID)
	switch packetSize {
	case userPacketNarrow:
		userID, err := strconv.Atoi(user.UserID)
		if err != nil {
			return nil, fmt.Errorf("user id %q not numeric for 28-byte layout: %w", user.UserID, ErrOperation)
		}
		name := encodeDeviceString(user.Name)
		return newBP().Pack(userNarrowFormat,
			[]interface{}{user.UID, user.Privilege, fit(user.Password, 5), fit(name, 8), card, 0, group, 0, userID})
	case userPacketWide:
		return newBP().Pack(userWideFormat,
			[]interface{}{user.UID, user.Privilege, fit(user.Password, 8), fit(user.Name, 24), card, 0, fit(user.GroupID, 7), 0, fit(user.UserID, 24)})
	}
	return nil, fmt.Errorf("user record width %d: %w", packetSize, ErrProtocol)
}

// makePackedUserRecord is the 29/73-byte save layout: a 0x02 tag byte, then
// every field shifted by one.
func makePackedUserRecord(user User, packetSize int) ([]byte, error) {
	rec, err := makeUserRecord(user, packetSize)
	if err != nil {
		return nil, err
	}
	return append([]byte{0x02}, rec...), nil
}

// makeTemplateEntry is one row of the fingerprint-index table sent with
// _CMD_SAVE_USERTEMPS: [0x02, uid:u16, 16+fid:u8, offset:u32].
func makeTemplateEntry(uid, fid, offset int) ([]byte, error) {
	return newBP().Pack([]string{"B", "H", "B", "I"}, []interface{}{2, uid, 0x10 + fid, offset})
}

// makeTemplateBlob prefixes the template with its own u16 length, prefix
// included.
func makeTemplateBlob(tpl []byte) ([]byte, error) {
	head, err := newBP().Pack([]string{"H"}, []interface{}{len(tpl) + 2})
	if err != nil {
		return nil, err
	}
	return append(head, tpl...), nil
}

// buildSaveUserTemplates assembles the _CMD_SAVE_USERTEMPS payload: a
// 12-byte region header [users_len, table_len, fps_len], packed user
// records, the index table, then the length-prefixed templates.
func buildSaveUserTemplates(pairs []UserTemplates, packetSize int) ([]byte, error) {
	var upack, table, fpack []byte
	for _, p := range pairs {
		rec, err := makePackedUserRecord(p.User, packetSize)
		if err != nil {
			return nil, err
		}
		upack = append(upack, rec...)
		for _, tpl := range p.Templates {
			blob, err := makeTemplateBlob(tpl.Template)
			if err != nil {
				return nil, err
			}
			entry, err := makeTemplateEntry(p.User.UID, tpl.FingerID, len(fpack))
			if err != nil {
				return nil, err
			}
			table = append(table, entry...)
			fpack = append(fpack, blob...)
		}
	}
	head, err := newBP().Pack([]string{"I", "I", "I"},
		[]interface{}{len(upack), len(table), len(fpack)})
	if err != nil {
		return nil, err
	}
	buf := append(head, upack...)
	buf = append(buf, table...)
	return append(buf, fpack...), nil
}

// parseTemplates walks the concatenated template store: each entry starts
// with [size:u16, uid:u16, fid:i8, valid:i8] where size covers the entry.
func parseTemplates(data []byte) ([]*Template, error) {
	templates := []*Template{}
	for len(data) >= 6 {
		v, err := newBP().UnPack([]string{"H", "H", "b", "b"}, data[:6])
		if err != nil {
			return nil, err
		}
		size := v[0].(int)
		if size < 6 || size > len(data) {
			return nil, fmt.Errorf("template entry size %d of %d: %w", size, len(data), ErrProtocol)
		}
		tpl := make([]byte, size-6)
		copy(tpl, data[6:size])
		templates = append(templates, &Template{
			UID:      v[1].(int),
			FingerID: v[2].(int),
			Valid:    v[3].(int),
			Template: tpl,
		})
		data = data[size:]
	}
	return templates, nil
}

// Attendance rows come in three widths. 8: [uid:u16, status:u8, time:u32,
// punch:u8] at 0/2/3/7. 16: [userid:u32, time:u32, status:u8, punch:u8] at
// 0/4/8/9. Anything else: [uid:u16, userid:24s, status:u8, time:u32,
// punch:u8] at 0/2/26/27/31 with the rest padding.
func parseAttendance(data []byte, recordSize int, loc *time.Location) (*Attendance, error) {
	switch {
	case recordSize == 8:
		v, err := newBP().UnPack([]string{"H", "B", "I", "B"}, data[:8])
		if err != nil {
			return nil, err
		}
		return &Attendance{
			UID:        v[0].(int),
			Status:     v[1].(int),
			AttendedAt: decodeTime(v[2].(int), loc),
			Punch:      v[3].(int),
		}, nil
	case recordSize == 16:
		v, err := newBP().UnPack([]string{"I", "I", "B", "B"}, data[:10])
		if err != nil {
			return nil, err
		}
		return &Attendance{
			UserID:     strconv.Itoa(v[0].(int)),
			AttendedAt: decodeTime(v[1].(int), loc),
			Status:     v[2].(int),
			Punch:      v[3].(int),
		}, nil
	case recordSize >= 32:
		v, err := newBP().UnPack([]string{"H", "24s", "B", "I", "B"}, data[:32])
		if err != nil {
			return nil, err
		}
		return &Attendance{
			UID:        v[0].(int),
			UserID:     decodeDeviceString([]byte(v[1].(string))),
			Status:     v[2].(int),
			AttendedAt: decodeTime(v[3].(int), loc),
			Punch:      v[4].(int),
		}, nil
	}
	return nil, fmt.Errorf("attendance record width %d: %w", recordSize, ErrProtocol)
}

// parseSizes reads the CMD_GET_FREE_SIZES block: 20 i32s, then optional face
// counters at offsets 80 and 88.
func parseSizes(data []byte) (capacity, error) {
	var c capacity
	if len(data) < 80 {
		return c, fmt.Errorf("sizes payload %d bytes: %w", len(data), ErrProtocol)
	}
	pad := make([]string, 20)
	for i := range pad {
		pad[i] = "i"
	}
	v, err := newBP().UnPack(pad, data[:80])
	if err != nil {
		return c, err
	}
	c.Users = v[4].(int)
	c.Fingers = v[6].(int)
	c.Records = v[8].(int)
	c.Dummy = v[10].(int)
	c.Cards = v[12].(int)
	c.FingersCap = v[14].(int)
	c.UsersCap = v[15].(int)
	c.RecordsCap = v[16].(int)
	c.FingersAv = v[17].(int)
	c.UsersAv = v[18].(int)
	c.RecordsAv = v[19].(int)
	if len(data) >= 92 {
		c.Faces = mustUnpack([]string{"i"}, data[80:84])[0].(int)
		c.FacesCap = mustUnpack([]string{"i"}, data[88:92])[0].(int)
	}
	return c, nil
}
