package ipconnection

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tinkerforge/go-ipconnection/wire"
)

func startMockListener(t *testing.T) (net.Listener, string, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	return ln, "127.0.0.1", uint16(addr.Port)
}

func newTestConnection() *Connection {
	return NewConnection(&Config{Logger: zerolog.Nop()})
}

func readFrame(t *testing.T, conn net.Conn) (PacketHeader, []byte) {
	t.Helper()
	hdr := make([]byte, HeaderSize)
	_, err := io.ReadFull(conn, hdr)
	require.NoError(t, err)
	h := DecodeHeader(hdr)
	payloadLen := int(h.Length) - HeaderSize
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		_, err := io.ReadFull(conn, payload)
		require.NoError(t, err)
	}
	return h, payload
}

func writeFrameTo(t *testing.T, conn net.Conn, h PacketHeader, payload []byte) {
	t.Helper()
	buf := EncodeHeader(h)
	_, err := conn.Write(buf[:])
	require.NoError(t, err)
	if len(payload) > 0 {
		_, err := conn.Write(payload)
		require.NoError(t, err)
	}
}

func TestConnectGetRoundTrip(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		h, _ := readFrame(t, conn)
		payload := make([]byte, 4)
		wire.PutInt[uint32](payload, 42)
		resp := HeaderWithPayload(h.UID, h.FunctionID, h.SequenceNumber, false, uint8(len(payload)))
		writeFrameTo(t, conn, resp, payload)
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(1, ResponseExpectedAlwaysTrue)

	recv := Get[uint32](dev, 1, nil, func(b []byte) (uint32, error) { return wire.Int[uint32](b), nil })
	v, recvErr, ok := recv.Recv()
	require.True(t, ok, recvErr)
	require.Equal(t, uint32(42), v)
}

func TestSetWithResponseExpectedDisabled(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		close(accepted)
		readFrame(t, conn) // the setter frame; no response is sent back
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))
	<-accepted

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(9, ResponseExpectedFalse)

	recv := Set[struct{}](dev, 9, nil, decodeEmpty)
	_, recvErr, ok := recv.Recv()
	require.False(t, ok)
	require.Equal(t, RecvErrSuccessButResponseExpectedIsDisabled, recvErr)
}

func TestCallbackFanout(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn <- conn
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	dev := NewDevice(c, 7, [3]uint8{})
	callbacks := RegisterCallback[uint16](dev, 20, func(b []byte) (uint16, error) { return wire.Int[uint16](b), nil })

	conn := <-serverConn
	defer conn.Close()

	payload := make([]byte, 2)
	wire.PutInt[uint16](payload, 1234)
	h := HeaderWithPayload(7, 20, 0, false, uint8(len(payload)))
	writeFrameTo(t, conn, h, payload)

	v, recvErr, ok := callbacks.Recv()
	require.True(t, ok, recvErr)
	require.Equal(t, uint16(1234), v)
}

func TestGetFailsFastWhenNotConnected(t *testing.T) {
	c := newTestConnection()
	defer c.Close()

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(1, ResponseExpectedAlwaysTrue)

	recv := Get[uint32](dev, 1, nil, func(b []byte) (uint32, error) { return wire.Int[uint32](b), nil })
	_, recvErr, ok := recv.Recv()
	require.False(t, ok)
	require.Equal(t, RecvErrNotConnected, recvErr)
}

func TestRecvTimesOut(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readFrame(t, conn) // never answers
		time.Sleep(200 * time.Millisecond)
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))
	c.SetTimeout(20 * time.Millisecond)

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(1, ResponseExpectedAlwaysTrue)

	recv := Get[uint32](dev, 1, nil, func(b []byte) (uint32, error) { return wire.Int[uint32](b), nil })
	_, recvErr, ok := recv.Recv()
	require.False(t, ok)
	require.Equal(t, RecvErrQueueTimeout, recvErr)
}

func TestEnumerateBroadcast(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn <- conn
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	events := c.RegisterEnumerateListener()
	c.Enumerate()

	conn := <-serverConn
	defer conn.Close()
	readFrame(t, conn) // the enumerate request itself (uid=0, fn=254)

	payload := make([]byte, wire.EnumerateAnswerSize)
	copy(payload[0:8], "6sQB8J")
	copy(payload[8:16], "0")
	payload[16] = 0
	copy(payload[17:20], []byte{1, 0, 0})
	copy(payload[20:23], []byte{2, 4, 4})
	wire.PutInt[uint16](payload[23:25], 13)
	payload[25] = 1

	writeFrameTo(t, conn, HeaderWithPayload(0, 253, 0, false, uint8(len(payload))), payload)

	ev, recvErr, ok := events.Recv()
	require.True(t, ok, recvErr)
	require.Equal(t, "6sQB8J", ev.UID)
	require.Equal(t, "0", ev.ConnectedUID)
	require.EqualValues(t, 13, ev.DeviceIdentifier)
	require.Equal(t, wire.EnumerationConnected, ev.EnumerationType)
}

func TestGetterReturnsErrorCode(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		h, _ := readFrame(t, conn)
		resp := HeaderWithPayload(h.UID, h.FunctionID, h.SequenceNumber, false, 0)
		resp.ErrorCode = 2
		writeFrameTo(t, conn, resp, nil)
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(10, ResponseExpectedAlwaysTrue)

	recv := Get[struct{}](dev, 10, nil, decodeEmpty)
	_, recvErr, ok := recv.Recv()
	require.False(t, ok)
	require.Equal(t, RecvErrFunctionNotSupported, recvErr)
}

func TestSequenceNumberWrapsAroundSkippingZero(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	const requests = 16
	seqs := make(chan uint8, requests)
	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn <- conn
		for i := 0; i < requests; i++ {
			h, _ := readFrame(t, conn)
			seqs <- h.SequenceNumber
		}
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))
	<-serverConn

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(9, ResponseExpectedFalse)

	for i := 0; i < requests; i++ {
		Set[struct{}](dev, 9, nil, decodeEmpty)
	}

	got := make([]uint8, requests)
	for i := range got {
		got[i] = <-seqs
	}

	require.Equal(t, uint8(15), got[14])
	require.Equal(t, uint8(1), got[15])
	require.NotContains(t, got, uint8(0))
}

func TestConcurrentGetsRouteByReverseSequence(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	serverConn := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn <- conn
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	dev := NewDevice(c, 1, [3]uint8{})
	dev.MarkFunction(1, ResponseExpectedAlwaysTrue)

	decode := func(b []byte) (uint32, error) { return wire.Int[uint32](b), nil }
	recvA := Get[uint32](dev, 1, nil, decode)
	recvB := Get[uint32](dev, 1, nil, decode)

	conn := <-serverConn
	defer conn.Close()

	hA, _ := readFrame(t, conn)
	hB, _ := readFrame(t, conn)
	require.NotEqual(t, hA.SequenceNumber, hB.SequenceNumber)

	// Answer out of order: B's response hits the wire before A's.
	payloadB := make([]byte, 4)
	wire.PutInt[uint32](payloadB, 222)
	writeFrameTo(t, conn, HeaderWithPayload(hB.UID, hB.FunctionID, hB.SequenceNumber, false, 4), payloadB)

	payloadA := make([]byte, 4)
	wire.PutInt[uint32](payloadA, 111)
	writeFrameTo(t, conn, HeaderWithPayload(hA.UID, hA.FunctionID, hA.SequenceNumber, false, 4), payloadA)

	vA, recvErrA, okA := recvA.Recv()
	require.True(t, okA, recvErrA)
	require.Equal(t, uint32(111), vA)

	vB, recvErrB, okB := recvB.Recv()
	require.True(t, okB, recvErrB)
	require.Equal(t, uint32(222), vB)
}

func TestAutoReconnectCycle(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	sessions := make(chan net.Conn, 2)
	go func() {
		for i := 0; i < 2; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			sessions <- conn
		}
	}()

	c := newTestConnection()
	defer c.Close()

	connects := c.RegisterConnectListener()
	disconnects := c.RegisterDisconnectListener()

	require.NoError(t, c.Connect(host, port))
	reason, ok := connects.Recv()
	require.True(t, ok)
	require.Equal(t, ConnectReasonRequest, reason)

	first := <-sessions
	first.Close() // daemon hangs up gracefully

	dreason, ok := disconnects.Recv()
	require.True(t, ok)
	require.Equal(t, DisconnectReasonShutdown, dreason)

	creason, ok := connects.Recv()
	require.True(t, ok)
	require.Equal(t, ConnectReasonAutoReconnect, creason)

	second := <-sessions
	defer second.Close()
	require.Equal(t, StateConnected, c.GetConnectionState())
}

func TestDisconnectObservedByListener(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1)
		_, _ = io.ReadFull(conn, buf)
	}()

	c := newTestConnection()
	defer c.Close()

	disconnects := c.RegisterDisconnectListener()
	require.NoError(t, c.Connect(host, port))
	require.NoError(t, c.Disconnect())

	reason, ok := disconnects.Recv()
	require.True(t, ok)
	require.Equal(t, DisconnectReasonRequest, reason)
}
