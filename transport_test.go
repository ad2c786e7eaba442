package zkterm

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeTransport(t *testing.T) (*tcpTransport, net.Conn) {
	t.Helper()
	client, device := net.Pipe()
	tr := &tcpTransport{addr: "pipe", conn: client, reader: bufio.NewReader(client)}
	t.Cleanup(func() {
		tr.close()
		device.Close()
	})
	return tr, device
}

func TestTCPRecvWholeFrame(t *testing.T) {
	tr, device := pipeTransport(t)
	packet, err := createHeader(CMD_ACK_OK, []byte{0xAB, 0xCD}, 1, 2)
	require.NoError(t, err)
	framed, err := createTCPTop(packet)
	require.NoError(t, err)

	go func() {
		device.Write(framed)
	}()

	got, err := tr.recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet, got)
}

func TestTCPRecvAccumulatesPartialReads(t *testing.T) {
	tr, device := pipeTransport(t)
	packet, err := createHeader(CMD_DATA, make([]byte, 300), 1, 2)
	require.NoError(t, err)
	framed, err := createTCPTop(packet)
	require.NoError(t, err)

	go func() {
		// Dribble the frame: envelope split from the body, body split
		// again. recv must reassemble.
		device.Write(framed[:5])
		time.Sleep(10 * time.Millisecond)
		device.Write(framed[5:100])
		time.Sleep(10 * time.Millisecond)
		device.Write(framed[100:])
	}()

	got, err := tr.recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet, got)
}

func TestTCPRecvTwoFramesOneWrite(t *testing.T) {
	tr, device := pipeTransport(t)
	first, err := createHeader(CMD_ACK_OK, nil, 1, 1)
	require.NoError(t, err)
	second, err := createHeader(CMD_ACK_OK, []byte{0x01}, 1, 2)
	require.NoError(t, err)
	f1, _ := createTCPTop(first)
	f2, _ := createTCPTop(second)

	go func() {
		device.Write(append(f1, f2...))
	}()

	got, err := tr.recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = tr.recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestTCPRecvBadMagic(t *testing.T) {
	tr, device := pipeTransport(t)
	go func() {
		device.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x08, 0x00, 0x00, 0x00})
	}()
	_, err := tr.recv(time.Second)
	assert.ErrorIs(t, err, ErrFrame)
}

func TestTCPRecvTimeout(t *testing.T) {
	tr, _ := pipeTransport(t)
	_, err := tr.recv(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTCPSendAddsEnvelope(t *testing.T) {
	tr, device := pipeTransport(t)
	packet, err := createHeader(CMD_CONNECT, nil, 0, USHRT_MAX-1)
	require.NoError(t, err)

	go func() {
		require.NoError(t, tr.send(packet))
	}()

	buf := make([]byte, 16)
	device.SetReadDeadline(time.Now().Add(time.Second))
	n, err := device.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)

	length, err := parseTCPTop(buf[:8])
	require.NoError(t, err)
	assert.Equal(t, 8, length)
	assert.Equal(t, packet, buf[8:])
}

func TestTCPChunkSize(t *testing.T) {
	assert.Equal(t, 0xFFC0, (&tcpTransport{}).chunkSize())
	assert.Equal(t, 16384, (&udpTransport{}).chunkSize())
}

func TestUDPExchange(t *testing.T) {
	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer device.Close()
	port := device.LocalAddr().(*net.UDPAddr).Port

	tr := newUDPTransport("127.0.0.1", port)
	require.NoError(t, tr.open())
	defer tr.close()

	request, err := createHeader(CMD_CONNECT, nil, 0, USHRT_MAX-1)
	require.NoError(t, err)
	require.NoError(t, tr.send(request))

	buf := make([]byte, 1024)
	device.SetReadDeadline(time.Now().Add(time.Second))
	n, addr, err := device.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, request, buf[:n]) // no envelope on the datagram carrier

	reply := mustPack([]string{"H", "H", "H", "H"},
		[]interface{}{CMD_ACK_OK, 0, 0x55AA, 0})
	_, err = device.WriteTo(reply, addr)
	require.NoError(t, err)

	got, err := tr.recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestUDPRecvTimeout(t *testing.T) {
	device, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer device.Close()
	port := device.LocalAddr().(*net.UDPAddr).Port

	tr := newUDPTransport("127.0.0.1", port)
	require.NoError(t, tr.open())
	defer tr.close()

	_, err = tr.recv(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
