package zkterm

import (
	"fmt"
	"strings"
	"time"
)

// GetTime reads the device clock.
func (zk *ZKTerm) GetTime() (time.Time, error) {
	res, err := zk.sendCommand(CMD_GET_TIME, nil)
	if err != nil {
		return time.Time{}, err
	}
	if !res.Status || len(res.Data) < 4 {
		return time.Time{}, responseError("get time", res.Code)
	}
	packed := mustUnpack([]string{"I"}, res.Data[:4])[0].(int)
	return decodeTime(packed, zk.loc), nil
}

// SetTime writes the device clock.
func (zk *ZKTerm) SetTime(t time.Time) error {
	arg, err := newBP().Pack([]string{"I"}, []interface{}{encodeTime(t.In(zk.loc))})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_SET_TIME, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("set time", res.Code)
	}
	return nil
}

// EnableDevice returns the terminal to normal operation.
func (zk *ZKTerm) EnableDevice() error {
	res, err := zk.sendCommand(CMD_ENABLEDEVICE, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("enable device", res.Code)
	}
	zk.disabled = false
	return nil
}

// DisableDevice locks the keypad and sensor while record operations run.
func (zk *ZKTerm) DisableDevice() error {
	res, err := zk.sendCommand(CMD_DISABLEDEVICE, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("disable device", res.Code)
	}
	zk.disabled = true
	return nil
}

// TestVoice plays one of the built-in voice prompts.
func (zk *ZKTerm) TestVoice(index int) error {
	arg, err := newBP().Pack([]string{"I"}, []interface{}{index})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_TEST_VOICE, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("test voice", res.Code)
	}
	return nil
}

// Restart reboots the terminal. The session is gone afterwards.
func (zk *ZKTerm) Restart() error {
	res, err := zk.sendCommand(CMD_RESTART, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("restart", res.Code)
	}
	zk.connected = false
	return nil
}

// PowerOff shuts the terminal down. The session is gone afterwards.
func (zk *ZKTerm) PowerOff() error {
	res, err := zk.sendCommand(CMD_POWEROFF, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("power off", res.Code)
	}
	zk.connected = false
	return nil
}

// GetFirmwareVersion reads the firmware version string.
func (zk *ZKTerm) GetFirmwareVersion() (string, error) {
	res, err := zk.sendCommand(CMD_GET_VERSION, nil)
	if err != nil {
		return "", err
	}
	if !res.Status {
		return "", responseError("get version", res.Code)
	}
	return decodeDeviceString(res.Data), nil
}

// GetOption reads one named device option, e.g. "~SerialNumber". The reply
// payload is "name=value".
func (zk *ZKTerm) GetOption(name string) (string, error) {
	res, err := zk.sendCommand(CMD_OPTIONS_RRQ, append([]byte(name), 0))
	if err != nil {
		return "", err
	}
	if !res.Status {
		return "", responseError("get option "+name, res.Code)
	}
	value := decodeDeviceString(res.Data)
	if i := strings.IndexByte(value, '='); i >= 0 {
		value = value[i+1:]
	}
	return value, nil
}

// SetOption writes one "name=value" device option.
func (zk *ZKTerm) SetOption(name, value string) error {
	res, err := zk.sendCommand(CMD_OPTIONS_WRQ, append([]byte(name+"="+value), 0))
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("set option "+name, res.Code)
	}
	return nil
}

// Named option getters for the fields every deployment ends up reading.

func (zk *ZKTerm) GetSerialNumber() (string, error) { return zk.GetOption("~SerialNumber") }
func (zk *ZKTerm) GetPlatform() (string, error)     { return zk.GetOption("~Platform") }
func (zk *ZKTerm) GetMAC() (string, error)          { return zk.GetOption("MAC") }
func (zk *ZKTerm) GetDeviceName() (string, error)   { return zk.GetOption("~DeviceName") }
func (zk *ZKTerm) GetFPVersion() (string, error)    { return zk.GetOption("~ZKFPVersion") }
func (zk *ZKTerm) GetFaceVersion() (string, error)  { return zk.GetOption("ZKFaceVersion") }
func (zk *ZKTerm) GetExtendFmt() (string, error)    { return zk.GetOption("~ExtendFmt") }
func (zk *ZKTerm) GetUserExtendFmt() (string, error) {
	return zk.GetOption("~UserExtFmt")
}
func (zk *ZKTerm) GetFaceFunOn() (string, error) { return zk.GetOption("FaceFunOn") }
func (zk *ZKTerm) GetCompatOldFirmware() (string, error) {
	return zk.GetOption("CompatOldFirmware")
}
func (zk *ZKTerm) GetIP() (string, error)      { return zk.GetOption("IPAddress") }
func (zk *ZKTerm) GetNetmask() (string, error) { return zk.GetOption("NetMask") }
func (zk *ZKTerm) GetGateway() (string, error) { return zk.GetOption("GATEIPAddress") }

// SetSDKBuild flags the session as SDK-driven; some firmware unlocks the
// extended command set only after it.
func (zk *ZKTerm) SetSDKBuild() error { return zk.SetOption("SDKBuild", "1") }

// GetPinWidth reads how many digits the device accepts in a user id.
func (zk *ZKTerm) GetPinWidth() (int, error) {
	res, err := zk.sendCommand(CMD_GET_PINWIDTH, []byte(" P"))
	if err != nil {
		return 0, err
	}
	if !res.Status || len(res.Data) < 1 {
		return 0, responseError("get pin width", res.Code)
	}
	return int(res.Data[0]), nil
}

// Unlock pulses the lock relay for the given duration, truncated to whole
// deciseconds.
func (zk *ZKTerm) Unlock(d time.Duration) error {
	arg, err := newBP().Pack([]string{"I"}, []interface{}{int(d / (100 * time.Millisecond))})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_UNLOCK, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("unlock", res.Code)
	}
	return nil
}

// GetDoorState reads the lock relay state byte.
func (zk *ZKTerm) GetDoorState() (int, error) {
	res, err := zk.sendCommand(CMD_DOORSTATE_RRQ, nil)
	if err != nil {
		return 0, err
	}
	if !res.Status || len(res.Data) < 1 {
		return 0, responseError("door state", res.Code)
	}
	return int(res.Data[0]), nil
}

// WriteLCD puts text on one line of the display.
func (zk *ZKTerm) WriteLCD(line int, text string) error {
	arg, err := newBP().Pack([]string{"h", "b"}, []interface{}{line, 0})
	if err != nil {
		return err
	}
	arg = append(arg, ' ')
	arg = append(arg, []byte(encodeDeviceString(text))...)
	res, err := zk.sendCommand(CMD_WRITE_LCD, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("write lcd", res.Code)
	}
	return nil
}

// ClearLCD restores the default display.
func (zk *ZKTerm) ClearLCD() error {
	res, err := zk.sendCommand(CMD_CLEAR_LCD, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("clear lcd", res.Code)
	}
	return nil
}

// ClearData wipes every record on the device: users, templates and logs.
func (zk *ZKTerm) ClearData() error {
	res, err := zk.sendCommand(CMD_CLEAR_DATA, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("clear data", res.Code)
	}
	zk.nextUID = 1
	zk.nextUserID = "1"
	return zk.refreshData()
}

// ReadRaw stages and returns one raw enumeration, e.g. CMD_DB_RRQ with a
// function type, for callers that parse vendor tables themselves.
func (zk *ZKTerm) ReadRaw(command, fct, ext int) ([]byte, error) {
	data, _, err := zk.readWithBuffer(command, fct, ext)
	return data, err
}

// regEvent (de)registers the realtime event mask.
func (zk *ZKTerm) regEvent(flags int) error {
	arg, err := newBP().Pack([]string{"I"}, []interface{}{flags})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_REG_EVENT, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError(fmt.Sprintf("reg event %#x", flags), res.Code)
	}
	return nil
}

// cancelCapture aborts any pending capture operation on the sensor.
func (zk *ZKTerm) cancelCapture() error {
	_, err := zk.sendCommand(CMD_CANCELCAPTURE, nil)
	return err
}

// startVerify puts the sensor back into normal identification mode.
func (zk *ZKTerm) startVerify() error {
	res, err := zk.sendCommand(CMD_STARTVERIFY, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("start verify", res.Code)
	}
	return nil
}
