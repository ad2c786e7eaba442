package zkterm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// KeepAlivePeriod is the TCP keepalive interval of the stream carrier.
	KeepAlivePeriod = time.Second * 6

	// ReadSocketTimeout paces the receive loop and the live-capture
	// liveness tick.
	ReadSocketTimeout = 3 * time.Second

	// ResponseTimeout is the per-operation reply deadline.
	ResponseTimeout = 60 * time.Second
)

// readChunkAttempts is the retry budget for buffered chunk and template
// reads. Some firmware drops the odd chunk reply; the legacy compensation is
// three attempts.
const readChunkAttempts = 3

// ZKTerm is one session with a terminal. All methods must be called from a
// single goroutine: the rolling reply identifier makes interleaving unsafe.
type ZKTerm struct {
	carrier   transport
	sessionID int
	replyID   int
	host      string
	port      int
	pin       int
	loc       *time.Location
	machineID int
	udp       bool

	connected      bool
	disabled       bool
	userPacketSize int
	sizes          capacity
	nextUID        int
	nextUserID     string

	responses   chan *frame
	events      chan *frame
	done        chan bool
	capturing   chan bool
	captureDone chan bool

	Log logger
}

// Option customizes a session at construction.
type Option func(*ZKTerm)

// WithPassword sets the comm password used in the authentication handshake.
func WithPassword(pin int) Option {
	return func(zk *ZKTerm) { zk.pin = pin }
}

// WithTimezone selects the location attendance timestamps are decoded in.
// The default is the local zone.
func WithTimezone(timezone string) Option {
	return func(zk *ZKTerm) { zk.loc = LoadLocation(timezone) }
}

// WithUDP selects the datagram carrier instead of the stream carrier.
func WithUDP() Option {
	return func(zk *ZKTerm) { zk.udp = true }
}

// WithMachineID tags log lines and attendance rows with a caller-chosen
// device id.
func WithMachineID(id int) Option {
	return func(zk *ZKTerm) { zk.machineID = id }
}

// NewZKTerm prepares a session with the terminal at host:port. Nothing is
// dialed until Connect.
func NewZKTerm(host string, port int, options ...Option) *ZKTerm {
	if Log == nil {
		Log = defaultLogger()
	}
	zk := &ZKTerm{
		host:      host,
		port:      port,
		loc:       time.Local,
		sessionID: 0,
		replyID:   USHRT_MAX - 1,
		Log:       Log,
	}
	for _, opt := range options {
		opt(zk)
	}
	return zk
}

// Connect opens the carrier and performs the connect/authenticate handshake.
// The session id assigned by the device in the connect reply is adopted for
// every later packet.
func (zk *ZKTerm) Connect() error {
	if zk.connected {
		return fmt.Errorf("already connected: %w", ErrOperation)
	}
	if zk.host == "" {
		return fmt.Errorf("connect: %w", ErrConfig)
	}
	port := zk.port
	if port == 0 {
		port = DefaultPort
	}
	if zk.carrier == nil {
		if zk.udp {
			zk.carrier = newUDPTransport(zk.host, port)
		} else {
			zk.carrier = newTCPTransport(zk.host, port)
		}
	}
	if zk.udp {
		zk.userPacketSize = userPacketNarrow
	} else {
		// Newer stream firmware uses the wide layout; the first
		// enumeration corrects this if the device disagrees.
		zk.userPacketSize = userPacketWide
	}
	if err := zk.carrier.open(); err != nil {
		zk.carrier = nil
		return err
	}

	zk.sessionID = 0
	zk.replyID = USHRT_MAX - 1
	zk.responses = make(chan *frame)
	zk.events = make(chan *frame, 20)
	zk.done = make(chan bool)
	go zk.receiveLoop()

	res, err := zk.sendCommand(CMD_CONNECT, nil)
	if err != nil {
		zk.teardown()
		return err
	}
	zk.sessionID = res.CommandID

	if res.Code == CMD_ACK_UNAUTH {
		commKey, err := makeCommKey(zk.pin, zk.sessionID, 50)
		if err != nil {
			zk.teardown()
			return err
		}
		res, err := zk.sendCommand(CMD_AUTH, commKey)
		if err != nil {
			zk.teardown()
			return err
		}
		if !res.Status {
			zk.teardown()
			return fmt.Errorf("auth rejected with code %d: %w", res.Code, ErrAuth)
		}
	} else if !res.Status {
		zk.teardown()
		return responseError("connect", res.Code)
	}

	zk.connected = true
	zk.Log.Infof("[%d] connected to %s:%d with session_id %d", zk.machineID, zk.host, port, zk.sessionID)
	return nil
}

// Disconnect sends CMD_EXIT and releases the socket. Errors on the exit
// command are swallowed; the carrier is closed either way.
func (zk *ZKTerm) Disconnect() error {
	if zk.carrier == nil {
		return fmt.Errorf("already disconnected: %w", ErrOperation)
	}
	if _, err := zk.sendCommand(CMD_EXIT, nil); err != nil {
		zk.Log.Debugf("[%d] exit command: %v", zk.machineID, err)
	}
	zk.teardown()
	zk.Log.Infof("[%d] disconnected", zk.machineID)
	return nil
}

func (zk *ZKTerm) teardown() {
	if zk.done != nil {
		close(zk.done)
		zk.done = nil
	}
	if zk.carrier != nil {
		zk.carrier.close()
		zk.carrier = nil
	}
	zk.connected = false
	zk.sessionID = 0
	zk.replyID = USHRT_MAX - 1
	zk.userPacketSize = 0
	zk.nextUID = 0
	zk.nextUserID = ""
}

// receiveLoop drains the carrier and classifies frames: CMD_REG_EVENT
// packets feed the event channel for live capture and enrollment, anything
// else is the reply to the in-flight command. A fatal carrier error is
// delivered to the waiter as an error frame and ends the loop.
func (zk *ZKTerm) receiveLoop() {
	carrier := zk.carrier
	done := zk.done
	for {
		select {
		case <-done:
			zk.Log.Debugf("[%d] receive loop stopped", zk.machineID)
			return
		default:
		}
		packet, err := carrier.recv(ReadSocketTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			zk.Log.Errorf("[%d] receive failed: %v", zk.machineID, err)
			select {
			case zk.responses <- &frame{Err: err}:
			case <-done:
			}
			return
		}
		head, err := parseHeader(packet)
		if err != nil {
			zk.Log.Errorf("[%d] short packet (%d bytes) dropped", zk.machineID, len(packet))
			continue
		}
		f := &frame{Head: head, Data: packet[8:]}
		zk.Log.Debugf("[%d] recv cmd=%d session=%d reply=%d len=%d",
			zk.machineID, head.Command, head.SessionID, head.ReplyID, len(f.Data))
		if head.Command == CMD_REG_EVENT {
			select {
			case zk.events <- f:
			default:
				zk.Log.Errorf("[%d] event buffer full, frame dropped", zk.machineID)
			}
		} else {
			select {
			case zk.responses <- f:
			case <-done:
				return
			}
		}
	}
}

func (zk *ZKTerm) nextResponse(timeout time.Duration) (*frame, error) {
	select {
	case f := <-zk.responses:
		if f.Err != nil {
			return nil, f.Err
		}
		return f, nil
	case <-time.After(timeout):
		zk.connected = false
		return nil, fmt.Errorf("no reply within %s: %w", timeout, ErrTimeout)
	}
}

func (zk *ZKTerm) nextEvent(timeout time.Duration) (*frame, error) {
	select {
	case f := <-zk.events:
		return f, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no event within %s: %w", timeout, ErrTimeout)
	}
}

// sendCommand issues one command and waits for its reply. The reply id is
// copied back from the reply header so the session stays in lockstep with
// the device.
func (zk *ZKTerm) sendCommand(command int, commandString []byte) (*Response, error) {
	if zk.carrier == nil {
		return nil, fmt.Errorf("not connected: %w", ErrTransport)
	}
	packet, err := createHeader(command, commandString, zk.sessionID, zk.replyID)
	if err != nil {
		return nil, err
	}
	zk.Log.Debugf("[%d] send cmd=%d session=%d reply=%d len=%d",
		zk.machineID, command, zk.sessionID, zk.replyID, len(commandString))
	if err := zk.carrier.send(packet); err != nil {
		return nil, err
	}

	msg, err := zk.nextResponse(ResponseTimeout)
	if err != nil {
		return nil, err
	}
	zk.replyID = msg.Head.ReplyID

	res := &Response{
		Code:      msg.Head.Command,
		CommandID: msg.Head.SessionID,
		Data:      msg.Data,
	}
	switch msg.Head.Command {
	case CMD_ACK_OK, CMD_PREPARE_DATA, CMD_DATA:
		res.Status = true
	}
	return res, nil
}

// sendEventAck acknowledges an unsolicited event frame. The packet carries
// the fixed reply id the device expects on event acks; no reply follows.
func (zk *ZKTerm) sendEventAck() {
	packet, err := createHeader(CMD_ACK_OK, nil, zk.sessionID, USHRT_MAX-1)
	if err != nil {
		zk.Log.Errorf("[%d] event ack: %v", zk.machineID, err)
		return
	}
	if err := zk.carrier.send(packet); err != nil {
		zk.Log.Errorf("[%d] event ack: %v", zk.machineID, err)
	}
}

// readWithBuffer stages a full enumeration on the device (prepare-buffer),
// streams it back in chunks and releases it. Small results come back inline
// as CMD_DATA. Once the prepare-buffer request is accepted, the free-data
// release runs on every exit path.
func (zk *ZKTerm) readWithBuffer(command, fct, ext int) ([]byte, int, error) {
	arg, err := newBP().Pack([]string{"B", "H", "i", "i"}, []interface{}{1, command, fct, ext})
	if err != nil {
		return nil, 0, err
	}
	res, err := zk.sendCommand(_CMD_PREPARE_BUFFER, arg)
	if err != nil {
		return nil, 0, err
	}
	if !res.Status {
		return nil, 0, responseError("prepare buffer", res.Code)
	}
	defer func() {
		if _, err := zk.sendCommand(CMD_FREE_DATA, nil); err != nil {
			zk.Log.Debugf("[%d] free data: %v", zk.machineID, err)
		}
	}()
	if res.Code == CMD_DATA {
		return res.Data, len(res.Data), nil
	}
	if len(res.Data) < 5 {
		return nil, 0, fmt.Errorf("prepare buffer reply %d bytes: %w", len(res.Data), ErrProtocol)
	}
	size := mustUnpack([]string{"I"}, res.Data[1:5])[0].(int)

	var readErr error
	data := make([]byte, 0, size)
	maxChunk := zk.carrier.chunkSize()
	for start := 0; start < size; {
		chunk := maxChunk
		if size-start < chunk {
			chunk = size - start
		}
		part, err := zk.readChunk(start, chunk)
		if err != nil {
			readErr = err
			break
		}
		data = append(data, part...)
		start += chunk
	}

	if readErr != nil {
		return nil, 0, readErr
	}
	return data, size, nil
}

// readChunk pulls one [start,start+size) window of the staged buffer. The
// stream carrier answers with a single CMD_DATA frame; the datagram carrier
// may answer CMD_PREPARE_DATA followed by raw data frames and a closing ack.
func (zk *ZKTerm) readChunk(start, size int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < readChunkAttempts; attempt++ {
		arg, err := newBP().Pack([]string{"i", "i"}, []interface{}{start, size})
		if err != nil {
			return nil, err
		}
		res, err := zk.sendCommand(_CMD_READ_BUFFER, arg)
		if err != nil {
			return nil, err
		}
		switch res.Code {
		case CMD_DATA:
			if len(res.Data) == size {
				return res.Data, nil
			}
			lastErr = fmt.Errorf("chunk %d/%d bytes: %w", len(res.Data), size, ErrProtocol)
		case CMD_PREPARE_DATA:
			data, err := zk.receiveChunkStream(size)
			if err == nil {
				return data, nil
			}
			lastErr = err
		default:
			return nil, responseError("read buffer", res.Code)
		}
		zk.Log.Debugf("[%d] chunk read attempt %d failed: %v", zk.machineID, attempt+1, lastErr)
	}
	return nil, lastErr
}

// receiveChunkStream collects the raw CMD_DATA frames that follow a
// CMD_PREPARE_DATA chunk reply until size bytes arrived, then consumes the
// closing ack.
func (zk *ZKTerm) receiveChunkStream(size int) ([]byte, error) {
	data := make([]byte, 0, size)
	for len(data) < size {
		f, err := zk.nextResponse(ResponseTimeout)
		if err != nil {
			return nil, err
		}
		switch f.Head.Command {
		case CMD_DATA:
			data = append(data, f.Data...)
		case CMD_ACK_OK:
			return nil, fmt.Errorf("chunk ended early at %d/%d bytes: %w", len(data), size, ErrProtocol)
		default:
			return nil, responseError("chunk stream", f.Head.Command)
		}
	}
	f, err := zk.nextResponse(ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if f.Head.Command != CMD_ACK_OK {
		return nil, responseError("chunk stream close", f.Head.Command)
	}
	zk.replyID = f.Head.ReplyID
	return data[:size], nil
}

// writeWithBuffer pushes a payload through the bulk-write protocol:
// free-data, prepare-data with the total length, then CMD_DATA chunks of at
// most MAX_CHUNK bytes, each individually acknowledged.
func (zk *ZKTerm) writeWithBuffer(buf []byte) error {
	if _, err := zk.sendCommand(CMD_FREE_DATA, nil); err != nil {
		return err
	}
	arg, err := newBP().Pack([]string{"I"}, []interface{}{len(buf)})
	if err != nil {
		return err
	}
	res, err := zk.sendCommand(CMD_PREPARE_DATA, arg)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("prepare data", res.Code)
	}
	for start := 0; start < len(buf); start += MAX_CHUNK {
		end := start + MAX_CHUNK
		if end > len(buf) {
			end = len(buf)
		}
		res, err := zk.sendCommand(CMD_DATA, buf[start:end])
		if err != nil {
			return err
		}
		if !res.Status {
			return responseError("data chunk", res.Code)
		}
	}
	return nil
}

// refreshData tells the device to fold pending record changes in.
func (zk *ZKTerm) refreshData() error {
	res, err := zk.sendCommand(CMD_REFRESHDATA, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("refresh data", res.Code)
	}
	return nil
}

// ReadSizes refreshes the cached capacity counters (user, fingerprint,
// record, card and face counts plus their capacities).
func (zk *ZKTerm) ReadSizes() error {
	res, err := zk.sendCommand(CMD_GET_FREE_SIZES, nil)
	if err != nil {
		return err
	}
	if !res.Status {
		return responseError("read sizes", res.Code)
	}
	sizes, err := parseSizes(res.Data)
	if err != nil {
		return err
	}
	zk.sizes = sizes
	return nil
}

// Connected reports whether the handshake completed and no timeout has
// invalidated the session since.
func (zk *ZKTerm) Connected() bool { return zk.connected }

// Clone returns an unconnected session with the same target and settings.
func (zk *ZKTerm) Clone() *ZKTerm {
	return &ZKTerm{
		host:      zk.host,
		port:      zk.port,
		pin:       zk.pin,
		loc:       zk.loc,
		machineID: zk.machineID,
		udp:       zk.udp,
		sessionID: 0,
		replyID:   USHRT_MAX - 1,
		Log:       zk.Log,
	}
}
