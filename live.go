package zkterm

import (
	"fmt"
	"strconv"
	"time"
)

// LiveCapture subscribes to the realtime punch stream and returns a channel
// of events. A nil event is a liveness tick: the receive deadline passed
// without a frame, so consumers can tell "quiet" from "dead". flags is the
// CMD_REG_EVENT mask; EF_ATTLOG for punches only, EF_ALL for everything.
//
// The stream is stopped with StopCapture; the prior device-enabled state is
// restored on the way out.
func (zk *ZKTerm) LiveCapture(flags int) (<-chan *Event, error) {
	if zk.capturing != nil {
		return nil, fmt.Errorf("already capturing: %w", ErrOperation)
	}

	users, err := zk.GetUsers()
	if err != nil {
		return nil, err
	}
	byUID := make(map[int]string, len(users))
	for _, u := range users {
		byUID[u.UID] = u.UserID
	}

	if err := zk.cancelCapture(); err != nil {
		return nil, err
	}
	if err := zk.startVerify(); err != nil {
		return nil, err
	}
	wasDisabled := zk.disabled
	if zk.disabled {
		if err := zk.EnableDevice(); err != nil {
			return nil, err
		}
	}
	if err := zk.regEvent(flags); err != nil {
		return nil, err
	}

	zk.Log.Infof("[%d] live capture started (mask %#x)", zk.machineID, flags)
	zk.capturing = make(chan bool)
	zk.captureDone = make(chan bool)
	out := make(chan *Event, 20)

	go func() {
		defer func() {
			if err := zk.regEvent(0); err != nil {
				zk.Log.Errorf("[%d] event deregister: %v", zk.machineID, err)
			}
			if wasDisabled {
				if err := zk.DisableDevice(); err != nil {
					zk.Log.Errorf("[%d] restore disabled state: %v", zk.machineID, err)
				}
			}
			close(out)
			close(zk.captureDone)
			zk.Log.Infof("[%d] live capture stopped", zk.machineID)
		}()
		for {
			select {
			case <-zk.capturing:
				return
			case <-zk.done:
				return
			case msg, ok := <-zk.events:
				if !ok {
					return
				}
				zk.sendEventAck()
				for _, ev := range zk.parseEvents(msg.Data, byUID) {
					select {
					case out <- ev:
					case <-zk.capturing:
						return
					}
				}
			case <-time.After(ReadSocketTimeout):
				// Liveness tick; dropped when the consumer is behind.
				select {
				case out <- nil:
				default:
				}
			}
		}
	}()

	return out, nil
}

// StopCapture ends the live stream and blocks until the capture goroutine
// has deregistered events and closed the channel.
func (zk *ZKTerm) StopCapture() {
	if zk.capturing == nil {
		return
	}
	zk.Log.Infof("[%d] stopping capture", zk.machineID)
	close(zk.capturing)
	<-zk.captureDone
	zk.capturing = nil
	zk.captureDone = nil
}

// parseEvents splits one CMD_REG_EVENT payload into punch records. The
// record width is inferred from the remaining length: the 10 and 14-byte
// forms carry a u16 UID, the 12-byte form a u32 user id, and forms of 32
// bytes or more a 24-byte user-id string. In every form the 6-byte compact
// timestamp follows the status and punch bytes. Any other width ends the
// parse.
func (zk *ZKTerm) parseEvents(data []byte, byUID map[int]string) []*Event {
	events := []*Event{}
	for len(data) >= 10 {
		var ev *Event
		switch {
		case len(data) == 10:
			v := mustUnpack([]string{"H", "B", "B", "6s"}, data[:10])
			ev = &Event{
				UID:        v[0].(int),
				Status:     v[1].(int),
				Punch:      v[2].(int),
				AttendedAt: decodeTimeHex([]byte(v[3].(string)), zk.loc),
			}
			if id, ok := byUID[ev.UID]; ok {
				ev.UserID = id
			} else {
				ev.UserID = strconv.Itoa(ev.UID)
			}
			data = data[10:]
		case len(data) == 12:
			v := mustUnpack([]string{"I", "B", "B", "6s"}, data[:12])
			ev = &Event{
				UserID:     strconv.Itoa(v[0].(int)),
				Status:     v[1].(int),
				Punch:      v[2].(int),
				AttendedAt: decodeTimeHex([]byte(v[3].(string)), zk.loc),
			}
			data = data[12:]
		case len(data) == 14:
			v := mustUnpack([]string{"H", "B", "B", "6s"}, data[:10])
			ev = &Event{
				UID:        v[0].(int),
				Status:     v[1].(int),
				Punch:      v[2].(int),
				AttendedAt: decodeTimeHex([]byte(v[3].(string)), zk.loc),
			}
			if id, ok := byUID[ev.UID]; ok {
				ev.UserID = id
			} else {
				ev.UserID = strconv.Itoa(ev.UID)
			}
			data = data[14:]
		case len(data) >= 32:
			v := mustUnpack([]string{"24s", "B", "B", "6s"}, data[:32])
			ev = &Event{
				UserID:     decodeDeviceString([]byte(v[0].(string))),
				Status:     v[1].(int),
				Punch:      v[2].(int),
				AttendedAt: decodeTimeHex([]byte(v[3].(string)), zk.loc),
			}
			// 36 and 52-byte forms append verification scores after
			// the timestamp; skip whatever the width says.
			if len(data) >= 52 {
				data = data[52:]
			} else if len(data) >= 36 {
				data = data[36:]
			} else {
				data = data[32:]
			}
		default:
			zk.Log.Debugf("[%d] unrecognized event width %d", zk.machineID, len(data))
			return events
		}
		events = append(events, ev)
	}
	return events
}
