package zkterm

import (
	"fmt"
	"strconv"
)

// GetUsers enumerates the user table. The per-record width reported by the
// device (28 or 72 bytes) becomes the session's layout for later writes, and
// the next free UID / user-id hints advance past everything seen.
func (zk *ZKTerm) GetUsers() ([]*User, error) {
	if err := zk.ReadSizes(); err != nil {
		return nil, err
	}
	data, size, err := zk.readWithBuffer(CMD_USERTEMP_RRQ, FCT_USER, 0)
	if err != nil {
		return nil, err
	}
	if size <= 4 || zk.sizes.Users == 0 {
		zk.nextUID = 1
		zk.nextUserID = "1"
		return []*User{}, nil
	}

	totalSize := mustUnpack([]string{"I"}, data[:4])[0].(int)
	data = data[4:]
	packetSize := totalSize / zk.sizes.Users
	if packetSize != userPacketNarrow && packetSize != userPacketWide {
		return nil, fmt.Errorf("user record width %d (total %d / %d users): %w",
			packetSize, totalSize, zk.sizes.Users, ErrProtocol)
	}
	if packetSize != zk.userPacketSize {
		zk.Log.Debugf("[%d] user packet size %d", zk.machineID, packetSize)
		zk.userPacketSize = packetSize
	}

	users := []*User{}
	maxUID := 0
	for len(data) >= packetSize {
		user, err := parseUser(data, packetSize)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
		if user.UID > maxUID {
			maxUID = user.UID
		}
		data = data[packetSize:]
	}

	zk.nextUID = maxUID + 1
	zk.nextUserID = strconv.Itoa(zk.nextUID)
	for userIDTaken(users, zk.nextUserID) {
		maxUID++
		zk.nextUserID = strconv.Itoa(maxUID)
	}
	return users, nil
}

func userIDTaken(users []*User, userID string) bool {
	for _, u := range users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// SetUser creates or overwrites one user record. A zero UID allocates the
// next free index; an empty UserID then takes the next free identifier, or
// the decimal form of the UID when the caller supplied the UID. Run
// GetUsers first on a populated device so the hints are warm.
func (zk *ZKTerm) SetUser(user User) error {
	if zk.userPacketSize == 0 {
		return fmt.Errorf("set user before connect: %w", ErrOperation)
	}
	if user.UID == 0 {
		if zk.nextUID == 0 {
			if _, err := zk.GetUsers(); err != nil {
				return err
			}
		}
		user.UID = zk.nextUID
		if user.UserID == "" {
			user.UserID = zk.nextUserID
		}
	}
	if user.UserID == "" {
		user.UserID = strconv.Itoa(user.UID)
	}

	record, err := makeUserRecord(user, zk.userPacketSize)
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_USER_WRQ, record)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("set user", res.Code)
	}
	if err := zk.refreshData(); err != nil {
		return err
	}
	if user.UID == zk.nextUID {
		zk.nextUID++
		zk.nextUserID = strconv.Itoa(zk.nextUID)
	}
	return nil
}

// DeleteUser removes one user record. With a zero UID the user table is
// enumerated to resolve the user-id string first.
func (zk *ZKTerm) DeleteUser(uid int, userID string) error {
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
			return fmt.Errorf("delete user %q: not found: %w", userID, ErrOperation)
		}
	}
	arg, err := newBP().Pack([]string{"h"}, []interface{}{uid})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_DELETE_USER, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("delete user", res.Code)
	}
	return zk.refreshData()
}
