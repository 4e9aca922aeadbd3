package ipconnection

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionState is the externally observable state of a Connection,
// updated exclusively by the socket worker goroutine.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectReason identifies why a connect-listener fired.
type ConnectReason int

const (
	ConnectReasonRequest ConnectReason = iota
	ConnectReasonAutoReconnect
)

// DisconnectReason identifies why a disconnect-listener fired.
type DisconnectReason int

const (
	DisconnectReasonRequest DisconnectReason = iota
	DisconnectReasonError
	DisconnectReasonShutdown
)

const (
	defaultTimeout  = 2500 * time.Millisecond
	pollInterval    = 5 * time.Second
	dialTimeout     = 30 * time.Second
	socketIOTimeout = 5 * time.Second

	// requestQueueDepth bounds the worker's inbox so a burst of application
	// requests cannot allocate without limit ahead of the single writer
	// goroutine that drains them.
	requestQueueDepth = 256
)

// Connection is the socket worker: the single goroutine that owns the TCP
// write half and every dispatch table, reachable only through reqCh. Every
// exported method on Connection is a thin wrapper that builds a
// workerRequest, sends it, and waits on an ack/done channel -- this file
// implements the goroutine side; connection.go implements the caller side.
type Connection struct {
	reqCh chan workerRequest

	state         atomic.Int32
	timeoutMs     atomic.Int64
	autoReconnect atomic.Bool

	log zerolog.Logger
}

func newConnectionWorker(log zerolog.Logger) *Connection {
	c := &Connection{
		reqCh: make(chan workerRequest, requestQueueDepth),
		log:   log,
	}
	c.timeoutMs.Store(defaultTimeout.Milliseconds())
	c.autoReconnect.Store(true)
	go c.run()
	return c
}

// send enqueues req for the worker goroutine. Every exported Connection/
// Device method builds one workerRequest and calls this.
func (c *Connection) send(req workerRequest) {
	c.reqCh <- req
}

func (c *Connection) currentTimeout() time.Duration {
	return time.Duration(c.timeoutMs.Load()) * time.Millisecond
}

// reconnectTarget remembers the last address Connect was asked to dial, so a
// later auto-reconnect attempt knows where to redial. It is only ever
// touched by the worker goroutine.
type reconnectTarget struct {
	host  string
	port  uint16
	valid bool
}

// run is the socket worker's top-level loop: the Go translation of the
// source's socket_thread_fn. The outer loop corresponds to one lifetime of
// "not attached to any socket"; each pass through it resets per-session
// dispatch state (sequence numbers, response queues) while leaving the
// durable callback/connect/disconnect/enumerate registries untouched.
func (c *Connection) run() {
	dispatch := newDispatchTables()
	var sessionID uint64
	target := reconnectTarget{}
	autoReconnectAllowed := true

	for {
		c.state.Store(int32(StateDisconnected))
		dispatch.drainResponseQueues()

		conn, reason, terminated := c.waitForConnect(dispatch, &target, &autoReconnectAllowed)
		if terminated {
			dispatch.retireAll()
			return
		}

		sessionID++
		c.state.Store(int32(StateConnected))
		dispatch.fanoutConnect(reason)
		c.log.Info().Str("event", "connected").Uint64("session_id", sessionID).Msg("ip connection established")

		go runSessionReader(conn, c.reqCh, sessionID, c.log)

		disconnectReason, terminated := c.serveConnection(conn, dispatch, sessionID, &target, &autoReconnectAllowed)
		c.state.Store(int32(StateDisconnected))
		dispatch.fanoutDisconnect(disconnectReason)
		c.log.Info().Str("event", "disconnected").Int("reason", int(disconnectReason)).Msg("ip connection lost")

		if terminated {
			dispatch.retireAll()
			return
		}
	}
}

// waitForConnect services requests while there is no live socket: it honors
// registrations and configuration changes immediately, fails any Set/Get
// with NotConnected, and blocks (polling every pollInterval to retry
// auto-reconnect) until either Connect succeeds, TriggerAutoReconnect
// succeeds, or Terminate arrives.
func (c *Connection) waitForConnect(dispatch *dispatchTables, target *reconnectTarget, autoReconnectAllowed *bool) (net.Conn, ConnectReason, bool) {
	if target.valid && *autoReconnectAllowed && c.autoReconnect.Load() {
		if conn, err := dialSession(target.host, target.port, c.log); err == nil {
			return conn, ConnectReasonAutoReconnect, false
		}
	}

	for {
		timer := time.NewTimer(pollInterval)
		select {
		case <-timer.C:
			if !target.valid || !*autoReconnectAllowed || !c.autoReconnect.Load() {
				continue
			}
			conn, err := dialSession(target.host, target.port, c.log)
			if err != nil {
				c.log.Warn().Err(err).Msg("auto-reconnect attempt failed")
				continue
			}
			return conn, ConnectReasonAutoReconnect, false

		case req := <-c.reqCh:
			timer.Stop()
			switch r := req.(type) {
			case connectReq:
				c.state.Store(int32(StateConnecting))
				conn, err := dialSession(r.host, r.port, c.log)
				if err != nil {
					c.state.Store(int32(StateDisconnected))
					r.done <- err
					continue
				}
				target.host, target.port, target.valid = r.host, r.port, true
				*autoReconnectAllowed = true
				r.done <- nil
				return conn, ConnectReasonRequest, false

			case triggerAutoReconnectReq:
				if !target.valid || !*autoReconnectAllowed || !c.autoReconnect.Load() {
					continue
				}
				conn, err := dialSession(target.host, target.port, c.log)
				if err != nil {
					c.log.Warn().Err(err).Msg("triggered auto-reconnect attempt failed")
					continue
				}
				return conn, ConnectReasonAutoReconnect, false

			case disconnectReq:
				r.done <- ErrNotConnected

			case setReq:
				cancelRequest(r)
				r.ack <- c.currentTimeout()
			case getReq:
				cancelRequest(r)
				r.ack <- c.currentTimeout()

			case registerCallbackReq:
				dispatch.registerCallback(r.uid, r.fn, r.sink)
				r.ack <- c.currentTimeout()
			case registerConnectReq:
				dispatch.connectSubs = append(dispatch.connectSubs, r.sink)
				r.ack <- c.currentTimeout()
			case registerDisconnectReq:
				dispatch.disconnectSubs = append(dispatch.disconnectSubs, r.sink)
				r.ack <- c.currentTimeout()
			case registerEnumerateReq:
				dispatch.enumerateSubs = append(dispatch.enumerateSubs, r.sink)
				r.ack <- c.currentTimeout()

			case setTimeoutReq:
				c.timeoutMs.Store(r.timeout.Milliseconds())
			case setAutoReconnectReq:
				c.autoReconnect.Store(r.enabled)
				if !r.enabled {
					*autoReconnectAllowed = false
				}

			case socketClosedReq, responseReq:
				// Stale message from a session that is already gone.

			case terminateReq:
				return nil, 0, true
			}
		}
	}
}

// writeSet allocates the next rotating sequence number and writes one Set
// frame, registering a response sink first when the caller wants one. The
// internal keepalive (Set{uid: 0, fn: 128}, spec.md section 4.4) is routed
// through this same path with no ack/responseSink of its own, so it
// consumes a sequence number exactly like any application-issued Set --
// the Go translation of the source's socket_thread_fn issuing its
// keep-alive through the ordinary Request::Set arm rather than writing the
// wire frame directly.
func (c *Connection) writeSet(conn net.Conn, dispatch *dispatchTables, seqNum *uint8, r setReq) error {
	seq := *seqNum
	*seqNum = nextSeqNumber(seq)
	if r.responseSink != nil {
		dispatch.addResponseSink(r.uid, r.fn, seq, r.responseSink)
	}
	h := HeaderWithPayload(r.uid, r.fn, seq, r.responseSink != nil, uint8(len(r.payload)))
	err := writeFrame(conn, h, r.payload)
	if err != nil && r.responseSink != nil {
		if sink, ok := dispatch.popResponseSink(r.uid, r.fn, seq); ok {
			sink <- responseResult{err: ErrCodeNotConnected, isErr: true}
		}
	}
	return err
}

// serveConnection owns conn until it is torn down for any reason, returning
// why. It is the Go translation of the source's 'connection inner loop.
func (c *Connection) serveConnection(conn net.Conn, dispatch *dispatchTables, sessionID uint64, target *reconnectTarget, autoReconnectAllowed *bool) (DisconnectReason, bool) {
	seqNum := uint8(1)
	defer conn.Close()

	for {
		timer := time.NewTimer(pollInterval)
		select {
		case <-timer.C:
			keepalive := setReq{uid: 0, fn: 128}
			if err := c.writeSet(conn, dispatch, &seqNum, keepalive); err != nil {
				return DisconnectReasonError, false
			}

		case req := <-c.reqCh:
			timer.Stop()
			switch r := req.(type) {
			case setReq:
				err := c.writeSet(conn, dispatch, &seqNum, r)
				r.ack <- c.currentTimeout()
				if err != nil {
					return DisconnectReasonError, false
				}

			case getReq:
				seq := seqNum
				seqNum = nextSeqNumber(seqNum)
				dispatch.addResponseSink(r.uid, r.fn, seq, r.responseSink)
				h := HeaderWithPayload(r.uid, r.fn, seq, true, uint8(len(r.payload)))
				err := writeFrame(conn, h, r.payload)
				r.ack <- c.currentTimeout()
				if err != nil {
					if sink, ok := dispatch.popResponseSink(r.uid, r.fn, seq); ok {
						sink <- responseResult{err: ErrCodeNotConnected, isErr: true}
					}
					return DisconnectReasonError, false
				}

			case registerCallbackReq:
				dispatch.registerCallback(r.uid, r.fn, r.sink)
				r.ack <- c.currentTimeout()
			case registerConnectReq:
				dispatch.connectSubs = append(dispatch.connectSubs, r.sink)
				r.ack <- c.currentTimeout()
			case registerDisconnectReq:
				dispatch.disconnectSubs = append(dispatch.disconnectSubs, r.sink)
				r.ack <- c.currentTimeout()
			case registerEnumerateReq:
				dispatch.enumerateSubs = append(dispatch.enumerateSubs, r.sink)
				r.ack <- c.currentTimeout()

			case connectReq:
				r.done <- &ConnectError{Kind: ConnectErrAlreadyConnected}

			case disconnectReq:
				*autoReconnectAllowed = false
				r.done <- nil
				return DisconnectReasonRequest, false

			case setTimeoutReq:
				c.timeoutMs.Store(r.timeout.Milliseconds())
			case setAutoReconnectReq:
				c.autoReconnect.Store(r.enabled)
				if !r.enabled {
					*autoReconnectAllowed = false
				}
			case triggerAutoReconnectReq:
				// Already connected; nothing to do.

			case socketClosedReq:
				if r.sessionID != sessionID {
					continue
				}
				if r.graceful {
					return DisconnectReasonShutdown, false
				}
				return DisconnectReasonError, false

			case responseReq:
				dispatchResponse(dispatch, r)

			case terminateReq:
				return DisconnectReasonShutdown, true
			}
		}
	}
}

func dispatchResponse(dispatch *dispatchTables, r responseReq) {
	h := r.header
	switch {
	case h.SequenceNumber == 0 && h.FunctionID == 253:
		dispatch.fanoutEnumerate(r.payload)
	case h.SequenceNumber == 0:
		dispatch.fanoutCallback(h.UID, h.FunctionID, r.payload)
	default:
		sink, ok := dispatch.popResponseSink(h.UID, h.FunctionID, h.SequenceNumber)
		if !ok {
			return
		}
		if h.ErrorCode != 0 {
			sink <- responseResult{err: brickletErrorFromWireCode(h.ErrorCode), isErr: true}
		} else {
			sink <- responseResult{payload: r.payload}
		}
	}
}

// nextSeqNumber advances the 4-bit sequence counter, wrapping from 15 back
// to 1; zero is reserved to mark callbacks and enumerate events.
func nextSeqNumber(seq uint8) uint8 {
	seq++
	if seq > 15 {
		seq = 1
	}
	return seq
}

func writeFrame(conn net.Conn, h PacketHeader, payload []byte) error {
	buf := EncodeHeader(h)
	if err := conn.SetWriteDeadline(time.Now().Add(socketIOTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(buf[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// dialSession opens a new TCP session to host:port, the Go translation of
// the source's create_socket: a bounded connect timeout, TCP_NODELAY since
// every frame is latency-sensitive and tiny, and a post-connect liveness
// check for peers that reset the connection immediately after accepting it.
func dialSession(host string, port uint16, log zerolog.Logger) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, &ConnectError{Kind: ConnectErrIOError, Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if !isReallyConnected(conn) {
		_ = conn.Close()
		return nil, &ConnectError{Kind: ConnectErrNotReallyConnected}
	}
	log.Debug().Str("addr", addr).Msg("dialed ip connection daemon")
	return conn, nil
}
