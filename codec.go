package zkterm

import (
	"fmt"
	"time"
	"unicode/utf8"

	binarypack "github.com/canhlinh/go-binary-pack"
	iconv "github.com/djimenez/iconv-go"
)

func newBP() *binarypack.BinaryPack {
	return &binarypack.BinaryPack{}
}

func mustUnpack(pad []string, data []byte) []interface{} {
	value, err := newBP().UnPack(pad, data)
	if err != nil {
		panic(err)
	}
	return value
}

func mustPack(pad []string, values []interface{}) []byte {
	data, err := newBP().Pack(pad, values)
	if err != nil {
		panic(err)
	}
	return data
}

// createChecksum is a one's-complement sum over 16-bit little-endian words.
// A trailing odd byte is sign-extended to 16 bits. The header's checksum
// field must be zero in p.
func createChecksum(p []byte) int {
	checksum := 0
	i := 0
	for ; i+1 < len(p); i += 2 {
		checksum += int(p[i]) | int(p[i+1])<<8
		if checksum > USHRT_MAX {
			checksum -= USHRT_MAX
		}
	}
	if i < len(p) {
		checksum += int(uint16(int16(int8(p[i]))))
	}
	for checksum > USHRT_MAX {
		checksum -= USHRT_MAX
	}
	checksum = ^checksum
	for checksum < 0 {
		checksum += USHRT_MAX
	}
	return checksum
}

// createHeader builds the 8-byte command header plus payload. The checksum
// covers the header as passed; the packet itself carries replyID+1, wrapping
// to 0 at USHRT_MAX. The device echoes the incremented value and the session
// copies it back from the reply.
func createHeader(command int, commandString []byte, sessionID int, replyID int) ([]byte, error) {
	buf, err := newBP().Pack([]string{"H", "H", "H", "H"}, []interface{}{command, 0, sessionID, replyID})
	if err != nil {
		return nil, err
	}
	buf = append(buf, commandString...)
	checksum := createChecksum(buf)

	replyID++
	if replyID >= USHRT_MAX {
		replyID -= USHRT_MAX
	}

	packData, err := newBP().Pack([]string{"H", "H", "H", "H"}, []interface{}{command, checksum, sessionID, replyID})
	if err != nil {
		return nil, err
	}
	return append(packData, commandString...), nil
}

func parseHeader(data []byte) (header, error) {
	if len(data) < 8 {
		return header{}, fmt.Errorf("header too short (%d bytes): %w", len(data), ErrFrame)
	}
	v, err := newBP().UnPack([]string{"H", "H", "H", "H"}, data[:8])
	if err != nil {
		return header{}, err
	}
	return header{
		Command:   v[0].(int),
		CheckSum:  v[1].(int),
		SessionID: v[2].(int),
		ReplyID:   v[3].(int),
	}, nil
}

// createTCPTop prepends the stream envelope: two magic words and the packet
// length as u32.
func createTCPTop(packet []byte) ([]byte, error) {
	top, err := newBP().Pack([]string{"H", "H", "I"},
		[]interface{}{MACHINE_PREPARE_DATA_1, MACHINE_PREPARE_DATA_2, len(packet)})
	if err != nil {
		return nil, err
	}
	return append(top, packet...), nil
}

// parseTCPTop validates the envelope magic and returns the payload length.
func parseTCPTop(top []byte) (int, error) {
	v, err := newBP().UnPack([]string{"H", "H", "I"}, top[:8])
	if err != nil {
		return 0, err
	}
	if v[0].(int) != MACHINE_PREPARE_DATA_1 || v[1].(int) != MACHINE_PREPARE_DATA_2 {
		return 0, fmt.Errorf("envelope magic %04x %04x: %w", v[0].(int), v[1].(int), ErrFrame)
	}
	return v[2].(int), nil
}

// makeCommKey derives the 4-byte CMD_AUTH payload from the comm password and
// the session id assigned by the connect reply. ticks is 50 in practice.
func makeCommKey(key, sessionID int, ticks int) ([]byte, error) {
	k := 0
	for i := 31; i >= 0 && key != 0; i-- {
		k |= (key & 1) << i
		key >>= 1
	}
	k += sessionID
	k &= 0xFFFFFFFF
	k ^= 0x4f534b5a // "ZKSO" little-endian
	k = (k&0xffff)<<16 | k>>16
	t := ticks & 0xFF
	k = (k & 0xFF00FFFF) ^ (t | t<<8 | t<<16 | t<<24)
	k &= 0xFFFFFFFF
	return newBP().Pack([]string{"I"}, []interface{}{k})
}

// encodeTime packs a timestamp into the device's u32 calendar. Months are
// always 31 days on the wire; the arithmetic must not normalize.
func encodeTime(t time.Time) int {
	return (((t.Year()-2000)*12+int(t.Month())-1)*31+t.Day()-1)*(24*60*60) +
		(t.Hour()*60+t.Minute())*60 + t.Second()
}

// decodeTime inverts encodeTime in the session's timezone.
func decodeTime(packed int, loc *time.Location) time.Time {
	t := packed
	second := t % 60
	t /= 60
	minute := t % 60
	t /= 60
	hour := t % 24
	t /= 24
	day := t%31 + 1
	t /= 31
	month := t%12 + 1
	t /= 12
	year := t + 2000
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
}

// decodeTimeHex reads the compact 6-byte timestamp of live events:
// [Y-2000, M, D, h, m, s].
func decodeTimeHex(b []byte, loc *time.Location) time.Time {
	if len(b) < 6 {
		return time.Time{}
	}
	return time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]),
		int(b[3]), int(b[4]), int(b[5]), 0, loc)
}

// decodeDeviceString trims a NUL-padded field. Older firmware stores names
// as GB18030; anything that is not valid UTF-8 goes through iconv.
func decodeDeviceString(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	s := string(b[:end])
	if utf8.ValidString(s) {
		return s
	}
	converted, err := iconv.ConvertString(s, "gb18030", "utf-8")
	if err != nil {
		return s
	}
	return converted
}

// encodeDeviceString is the inverse for outbound records: non-ASCII names go
// back to GB18030 so narrow-layout firmware renders them.
func encodeDeviceString(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	converted, err := iconv.ConvertString(s, "utf-8", "gb18030")
	if err != nil {
		return s
	}
	return converted
}

// fit clips s to the n-byte field width; the packer cannot truncate and
// fixed-offset layouts must never overrun.
func fit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func LoadLocation(timezone string) *time.Location {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Local
	}
	return location
}
