// Package zkterm is a client for the binary protocol spoken by networked
// biometric attendance and access-control terminals (fingerprint, card, face
// and PIN time clocks).
//
// A session is opened with NewZKTerm + Connect and torn down with Disconnect.
// On top of the session the package offers user and fingerprint-template
// CRUD, attendance log retrieval, a live stream of punch events, a remote
// enrollment flow, and assorted device-control commands (relay unlock, LCD
// writes, voice test, restart, power off).
//
//	zk := zkterm.NewZKTerm("192.168.1.20", 4370)
//	if err := zk.Connect(); err != nil {
//		log.Fatal(err)
//	}
//	defer zk.Disconnect()
//
//	users, err := zk.GetUsers()
//
// The device speaks the same framing over TCP and UDP; TCP adds an 8-byte
// envelope in front of every packet. The default carrier is TCP, WithUDP
// selects the datagram carrier. A session is strictly serial: at most one
// command may be in flight at a time.
package zkterm
