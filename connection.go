package ipconnection

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinkerforge/go-ipconnection/wire"
)

// Config configures a new Connection. A nil Config passed to NewConnection
// is equivalent to DefaultConfig().
type Config struct {
	// Logger receives structured lifecycle events (connect, disconnect,
	// reconnect attempts). The zero value is zerolog's no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config that logs to stderr with a timestamp,
// matching the logging setup generated-code consumers of this package are
// expected to configure for themselves in production.
func DefaultConfig() *Config {
	return &Config{Logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// NewConnection creates a Connection and starts its socket worker goroutine.
// The Connection is unusable for requests until Connect succeeds, but
// registration calls (RegisterConnectListener and friends) and
// configuration calls (SetTimeout, SetAutoReconnect) work immediately.
func NewConnection(config *Config) *Connection {
	if config == nil {
		config = DefaultConfig()
	}
	return newConnectionWorker(config.Logger)
}

// Connect opens a TCP session to a brick daemon at host:port. It blocks
// until the session is established or fails; DisconnectReason/ConnectReason
// listeners observe later lifecycle changes asynchronously.
func (c *Connection) Connect(host string, port uint16) error {
	done := make(chan error, 1)
	c.send(connectReq{host: host, port: port, done: done})
	return <-done
}

// Disconnect closes the active session, if any, and disables auto-reconnect
// for it. It returns ErrNotConnected if there was nothing to disconnect.
func (c *Connection) Disconnect() error {
	done := make(chan error, 1)
	c.send(disconnectReq{done: done})
	return <-done
}

// Close tears the Connection down for good: it disconnects any active
// session and stops the socket worker goroutine. It is this package's
// substitute for the source's Drop impl; callers should defer it.
func (c *Connection) Close() error {
	err := c.Disconnect()
	c.send(terminateReq{})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

var _ io.Closer = (*Connection)(nil)

// GetConnectionState reports the worker's current state.
func (c *Connection) GetConnectionState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// SetTimeout changes how long future Receiver.Recv calls wait before giving
// up. It has no effect on Receivers already in flight.
func (c *Connection) SetTimeout(timeout time.Duration) {
	c.send(setTimeoutReq{timeout: timeout})
}

// GetTimeout returns the timeout currently applied to new requests.
func (c *Connection) GetTimeout() time.Duration {
	return c.currentTimeout()
}

// SetAutoReconnect toggles whether the worker redials automatically after an
// unrequested disconnect. Default is enabled.
func (c *Connection) SetAutoReconnect(enabled bool) {
	c.send(setAutoReconnectReq{enabled: enabled})
}

// GetAutoReconnect reports the current auto-reconnect setting.
func (c *Connection) GetAutoReconnect() bool {
	return c.autoReconnect.Load()
}

// TriggerReconnect asks the worker to retry connecting to the last known
// target right away instead of waiting out the rest of the current poll
// interval. It has no effect if there is no remembered target, auto-reconnect
// is disabled, or a session is already active.
func (c *Connection) TriggerReconnect() {
	c.send(triggerAutoReconnectReq{})
}

// Enumerate asks every device attached to the daemon to announce itself
// through every registered EnumerateListener. It does not itself return the
// results; call RegisterEnumerateListener first.
func (c *Connection) Enumerate() {
	ack := make(ackChan, 1)
	c.send(setReq{uid: 0, fn: 254, ack: ack})
	<-ack
}

// ConnectListener observes every future successful (re)connect.
type ConnectListener struct{ sink *subscriberSink[ConnectReason] }

func (l *ConnectListener) Recv() (ConnectReason, bool) {
	v, ok := <-l.sink.ch
	return v, ok
}

func (l *ConnectListener) TryRecv() (ConnectReason, bool) {
	select {
	case v, ok := <-l.sink.ch:
		return v, ok
	default:
		return 0, false
	}
}

func (l *ConnectListener) Iter() iter.Seq[ConnectReason] {
	return func(yield func(ConnectReason) bool) {
		for {
			v, ok := l.Recv()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// RegisterConnectListener subscribes to connect events.
func (c *Connection) RegisterConnectListener() *ConnectListener {
	sink := newSubscriberSink[ConnectReason](lifecycleQueueDepth)
	ack := make(ackChan, 1)
	c.send(registerConnectReq{sink: sink, ack: ack})
	<-ack
	return &ConnectListener{sink: sink}
}

// DisconnectListener observes every future disconnect.
type DisconnectListener struct{ sink *subscriberSink[DisconnectReason] }

func (l *DisconnectListener) Recv() (DisconnectReason, bool) {
	v, ok := <-l.sink.ch
	return v, ok
}

func (l *DisconnectListener) TryRecv() (DisconnectReason, bool) {
	select {
	case v, ok := <-l.sink.ch:
		return v, ok
	default:
		return 0, false
	}
}

func (l *DisconnectListener) Iter() iter.Seq[DisconnectReason] {
	return func(yield func(DisconnectReason) bool) {
		for {
			v, ok := l.Recv()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// RegisterDisconnectListener subscribes to disconnect events.
func (c *Connection) RegisterDisconnectListener() *DisconnectListener {
	sink := newSubscriberSink[DisconnectReason](lifecycleQueueDepth)
	ack := make(ackChan, 1)
	c.send(registerDisconnectReq{sink: sink, ack: ack})
	<-ack
	return &DisconnectListener{sink: sink}
}

// RegisterEnumerateListener subscribes to enumerate events, decoded into
// wire.EnumerateAnswer values.
func (c *Connection) RegisterEnumerateListener() *CallbackReceiver[wire.EnumerateAnswer] {
	sink := newSubscriberSink[[]byte](lifecycleQueueDepth)
	ack := make(ackChan, 1)
	c.send(registerEnumerateReq{sink: sink, ack: ack})
	<-ack
	return newCallbackReceiver(sink, wire.DecodeEnumerateAnswer)
}

// lifecycleQueueDepth bounds how many connect/disconnect/enumerate events
// can be buffered for a listener that is not being drained promptly.
const lifecycleQueueDepth = 8
