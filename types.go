package zkterm

import (
	"fmt"
	"time"
)

// Response is the classified reply to a single command.
type Response struct {
	Status    bool
	Code      int
	CommandID int
	Data      []byte
}

func (r Response) String() string {
	return fmt.Sprintf("Status %v Code %d", r.Status, r.Code)
}

// User is one user record on the device. UID is the device-local index,
// UserID the application-level identifier (numeric on the 28-byte layout,
// free-form up to 24 bytes on the 72-byte layout).
type User struct {
	UID       int
	UserID    string
	Name      string
	Privilege int
	Password  string
	GroupID   string
	Card      string
}

// Disabled reports bit 0 of the privilege byte.
func (u User) Disabled() bool {
	return u.Privilege&1 != 0
}

// Admin reports whether the privilege type bits mark an administrator.
func (u User) Admin() bool {
	return u.Privilege&USER_ADMIN == USER_ADMIN
}

// Template is one fingerprint enrollment blob, keyed by (UID, FingerID).
// FingerID runs 0-9.
type Template struct {
	UID      int
	FingerID int
	Valid    int
	Template []byte
}

func (t Template) String() string {
	return fmt.Sprintf("<Template uid=%d fid=%d valid=%d size=%d>", t.UID, t.FingerID, t.Valid, len(t.Template))
}

// UserTemplates pairs a user record with the fingerprints to push alongside
// it in SaveUserTemplates.
type UserTemplates struct {
	User      User
	Templates []Template
}

// Attendance is one punch row. UserID is empty on devices whose log rows
// carry only the UID; GetAttendances resolves it through the user table
// where possible.
type Attendance struct {
	UID        int
	UserID     string
	AttendedAt time.Time
	Status     int
	Punch      int
	SensorID   int
}

func (a Attendance) String() string {
	return fmt.Sprintf("<Attendance %s %s status=%d punch=%d>", a.UserID, a.AttendedAt.Format("2006-01-02 15:04:05"), a.Status, a.Punch)
}

// Event is one live-capture record. A nil *Event on the capture channel is a
// liveness tick: the receive deadline passed without a punch.
type Event struct {
	UID        int
	UserID     string
	AttendedAt time.Time
	Status     int
	Punch      int
}

// EnrollResult reports the terminal state of an enrollment flow. Raw holds
// the undecoded bytes of the final scan event for callers that need the
// device-specific fields around the status code.
type EnrollResult struct {
	Status int
	Raw    []byte
}

type capacity struct {
	Users      int
	Fingers    int
	Records    int
	Dummy      int
	Cards      int
	FingersCap int
	UsersCap   int
	RecordsCap int
	FingersAv  int
	UsersAv    int
	RecordsAv  int
	Faces      int
	FacesCap   int
}

type header struct {
	Command   int
	CheckSum  int
	SessionID int
	ReplyID   int
}

type frame struct {
	Head header
	Data []byte
	Err  error
}
