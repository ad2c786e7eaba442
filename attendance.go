package zkterm

import (
	"fmt"
	"strconv"
)

// GetAttendances pulls the whole attendance log. The row width comes from
// the cached record count; 8-byte rows carry only the UID, so the user table
// is enumerated first to resolve user-id strings.
func (zk *ZKTerm) GetAttendances() ([]*Attendance, error) {
	users, err := zk.GetUsers()
	if err != nil {
		return nil, err
	}
	byUID := make(map[int]string, len(users))
	for _, u := range users {
		byUID[u.UID] = u.UserID
	}

	data, size, err := zk.readWithBuffer(CMD_ATTLOG_RRQ, 0, 0)
	if err != nil {
		return nil, err
	}
	if size <= 4 || zk.sizes.Records == 0 {
		return []*Attendance{}, nil
	}

	totalSize := mustUnpack([]string{"I"}, data[:4])[0].(int)
	data = data[4:]
	recordSize := totalSize / zk.sizes.Records
	if recordSize != 8 && recordSize != 16 && recordSize < 32 {
		return nil, fmt.Errorf("attendance record width %d (total %d / %d records): %w",
			recordSize, totalSize, zk.sizes.Records, ErrProtocol)
	}

	attendances := []*Attendance{}
	for len(data) >= recordSize {
		att, err := parseAttendance(data, recordSize, zk.loc)
		if err != nil {
			return nil, err
		}
		att.SensorID = zk.machineID
		if att.UserID == "" {
			if id, ok := byUID[att.UID]; ok {
				att.UserID = id
			} else {
				att.UserID = strconv.Itoa(att.UID)
			}
		}
		attendances = append(attendances, att)
		data = data[recordSize:]
	}
	return attendances, nil
}

// ClearAttendances erases the attendance log on the device.
func (zk *ZKTerm) ClearAttendances() error {
	res, err := zk.sendCommand(CMD_CLEAR_ATTLOG, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("clear attendance", res.Code)
	}
	return zk.refreshData()
}
