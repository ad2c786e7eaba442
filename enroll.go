package zkterm

import (
	"fmt"
	"strconv"
)

// Enrollment status codes reported in the second scan event of each round.
const (
	enrollRescan = 0x64
	enrollOK     = 0x00
)

// enrollRounds is how many scan rounds the device runs before giving up.
const enrollRounds = 3

// EnrollUser drives a fingerprint enrollment at the terminal: the sensor
// prompts for the finger and reports back over the event stream. fingerID
// runs 0-9. With an empty userID the user table is enumerated first to
// resolve it from uid.
//
// The flow is synchronous from the caller's view but consumes unsolicited
// event frames between requests; nothing else may use the session while it
// runs.
func (zk *ZKTerm) EnrollUser(uid, fingerID int, userID string) (*EnrollResult, error) {
	if userID == "" {
		users, err := zk.GetUsers()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.UID == uid {
				userID = u.UserID
				break
			}
		}
		if userID == "" {
			return nil, fmt.Errorf("enroll uid %d: not found: %w", uid, ErrOperation)
		}
	}

	var arg []byte
	var err error
	if zk.udp {
		idNum, convErr := strconv.Atoi(userID)
		if convErr != nil {
			return nil, fmt.Errorf("enroll user id %q not numeric on datagram carrier: %w", userID, ErrOperation)
		}
		arg, err = newBP().Pack([]string{"I", "B"}, []interface{}{idNum, fingerID})
	} else {
		arg, err = newBP().Pack([]string{"24s", "B", "B"}, []interface{}{fit(userID, 24), fingerID, 1})
	}
	if err != nil {
		return nil, err
	}

	if err := zk.cancelCapture(); err != nil {
		return nil, err
	}
	res, err := zk.sendCommand(CMD_STARTENROLL, arg)
	if err != nil {
		return nil, err
	}
	if !res.Status {
		return nil, responseError("start enroll", res.Code)
	}
	if err := zk.regEvent(EF_ALL); err != nil {
		return nil, err
	}

	defer func() {
		if err := zk.regEvent(0); err != nil {
			zk.Log.Debugf("[%d] enroll event deregister: %v", zk.machineID, err)
		}
		if err := zk.cancelCapture(); err != nil {
			zk.Log.Debugf("[%d] enroll cancel capture: %v", zk.machineID, err)
		}
		if err := zk.startVerify(); err != nil {
			zk.Log.Debugf("[%d] enroll start verify: %v", zk.machineID, err)
		}
	}()

	result := &EnrollResult{Status: -1}
	for round := 0; round < enrollRounds; round++ {
		// First event: finger placed on the sensor.
		if _, err := zk.nextEvent(ResponseTimeout); err != nil {
			return nil, err
		}
		zk.sendEventAck()

		// Second event: the scan score, status at the head of the
		// payload on both carriers.
		scan, err := zk.nextEvent(ResponseTimeout)
		if err != nil {
			return nil, err
		}
		zk.sendEventAck()
		if len(scan.Data) < 2 {
			return nil, fmt.Errorf("enroll event %d bytes: %w", len(scan.Data), ErrProtocol)
		}
		status := mustUnpack([]string{"H"}, scan.Data[:2])[0].(int)
		result.Status = status
		result.Raw = scan.Data

		switch status {
		case enrollRescan:
			zk.Log.Debugf("[%d] enroll round %d: rescan", zk.machineID, round+1)
			continue
		case enrollOK:
			zk.Log.Infof("[%d] enrolled %s finger %d", zk.machineID, userID, fingerID)
			return result, nil
		default:
			return result, fmt.Errorf("enroll failed with device status %#x: %w", status, ErrOperation)
		}
	}
	return result, fmt.Errorf("enroll rescans exhausted: %w", ErrOperation)
}
