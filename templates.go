package zkterm

import (
	"bytes"
	"fmt"
)

// GetTemplates enumerates every fingerprint template on the device.
func (zk *ZKTerm) GetTemplates() ([]*Template, error) {
	if err := zk.ReadSizes(); err != nil {
		return nil, err
	}
	if zk.sizes.Fingers == 0 {
		return []*Template{}, nil
	}
	data, size, err := zk.readWithBuffer(CMD_DB_RRQ, FCT_FINGERTMP, 0)
	if err != nil {
		return nil, err
	}
	if size <= 4 {
		return []*Template{}, nil
	}
	totalSize := mustUnpack([]string{"I"}, data[:4])[0].(int)
	if totalSize > len(data)-4 {
		totalSize = len(data) - 4
	}
	return parseTemplates(data[4 : 4+totalSize])
}

// GetUserTemplate reads one template by (uid, finger index). The read is
// retried on the same budget as buffered chunks; some firmware needs the
// second knock.
func (zk *ZKTerm) GetUserTemplate(uid, fingerID int) (*Template, error) {
	arg, err := newBP().Pack([]string{"h", "b"}, []interface{}{uid, fingerID})
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < readChunkAttempts; attempt++ {
		res, err := zk.sendCommand(_CMD_GET_USERTEMP, arg)
		if err != nil {
			return nil, err
		}
		switch res.Code {
		case CMD_DATA:
			if len(res.Data) > 0 {
				return &Template{UID: uid, FingerID: fingerID, Valid: 1,
					Template: trimTemplate(res.Data)}, nil
			}
			lastErr = fmt.Errorf("empty template reply: %w", ErrProtocol)
		case CMD_PREPARE_DATA:
			if len(res.Data) < 4 {
				lastErr = fmt.Errorf("prepare reply %d bytes: %w", len(res.Data), ErrProtocol)
				break
			}
			size := mustUnpack([]string{"I"}, res.Data[:4])[0].(int)
			data, err := zk.receiveChunkStream(size)
			if err != nil {
				lastErr = err
				break
			}
			return &Template{UID: uid, FingerID: fingerID, Valid: 1,
				Template: trimTemplate(data)}, nil
		default:
			lastErr = responseError("get user template", res.Code)
		}
		zk.Log.Debugf("[%d] template read attempt %d failed: %v", zk.machineID, attempt+1, lastErr)
	}
	return nil, lastErr
}

// trimTemplate drops the device's trailing padding: a closing byte and, when
// present, six NULs in front of it.
func trimTemplate(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	data = data[:len(data)-1]
	if len(data) >= 6 && bytes.Equal(data[len(data)-6:], make([]byte, 6)) {
		data = data[:len(data)-6]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// SaveUserTemplates pushes user records together with their fingerprints in
// one bulk write: the staged payload carries the packed users, the
// fingerprint index table and the length-prefixed templates.
func (zk *ZKTerm) SaveUserTemplates(pairs []UserTemplates) error {
	if len(pairs) == 0 {
		return nil
	}
	if zk.userPacketSize == 0 {
		return fmt.Errorf("save templates before connect: %w", ErrOperation)
	}
	buf, err := buildSaveUserTemplates(pairs, zk.userPacketSize)
	if err != nil {
		return err
	}
	if err := zk.writeWithBuffer(buf); err != nil {
		return err
	}
	arg, err := newBP().Pack([]string{"I", "H", "H"}, []interface{}{len(buf), 0, 8})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(_CMD_SAVE_USERTEMPS, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("save user templates", res.Code)
	}
	return zk.refreshData()
}

// DeleteUserTemplate removes one template. On the stream carrier newer
// firmware addresses it by user-id string; everything else falls back to the
// uid form.
func (zk *ZKTerm) DeleteUserTemplate(uid, fingerID int, userID string) error {
	if !zk.udp && userID != "" {
		arg, err := newBP().Pack([]string{"24s", "B"}, []interface{}{fit(userID, 24), fingerID})
		if err != nil {
			return err
		}
		res, err := zk.sendCommand(_CMD_DEL_USER_TEMP, arg)
		if err != nil {
			return err
		}
		if res.Status {
			return zk.refreshData()
		}
		// Older firmware does not know the string form; retry by uid.
		zk.Log.Debugf("[%d] string template delete refused (%d)", zk.machineID, res.Code)
	}
	if uid == 0 {
		users, err := zk.GetUsers()
		if err != nil {
			return err
		}
		for _, u := range users {
			if u.UserID == userID {
				uid = u.UID
				break
			}
		}
		if uid == 0 {
			return fmt.Errorf("delete template %q: not found: %w", userID, ErrOperation)
		}
	}
	arg, err := newBP().Pack([]string{"h", "b"}, []interface{}{uid, fingerID})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_DELETE_USERTEMP, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("delete template", res.Code)
	}
	return zk.refreshData()
}
