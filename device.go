package ipconnection

import "sync"

// ResponseExpectedFlag tracks whether a given function ID on a Device
// expects a response, the Go translation of the source's
// ResponseExpectedFlag. Every device table starts fully
// ResponseExpectedInvalidFunctionID; generated bindings mark each function
// they implement as one of the other three during construction.
type ResponseExpectedFlag int

const (
	ResponseExpectedInvalidFunctionID ResponseExpectedFlag = iota
	// ResponseExpectedFalse is a setter whose response is currently
	// suppressed; the application may turn it back on.
	ResponseExpectedFalse
	// ResponseExpectedTrue is a setter whose response is currently enabled,
	// or a getter/callback-registration, which always carries a response.
	ResponseExpectedTrue
	// ResponseExpectedAlwaysTrue can never be disabled.
	ResponseExpectedAlwaysTrue
)

// Device is one addressable brick or bricklet reachable through a
// Connection, the Go translation of the source's Device. Per-device payload
// encoding lives in generated bindings; this type only owns what every
// device needs regardless of kind: its UID, response-expected bookkeeping,
// and high-level per-function locks.
type Device struct {
	conn       *Connection
	uid        uint32
	apiVersion [3]uint8

	responseExpected [256]ResponseExpectedFlag

	hlMu    sync.Mutex
	hlLocks map[uint8]*sync.Mutex
}

// NewDevice wires a Device to conn. apiVersion is typically filled in by
// generated code after querying the device's identity.
func NewDevice(conn *Connection, uid uint32, apiVersion [3]uint8) *Device {
	return &Device{conn: conn, uid: uid, apiVersion: apiVersion}
}

func (d *Device) UID() uint32             { return d.uid }
func (d *Device) APIVersion() [3]uint8    { return d.apiVersion }
func (d *Device) Connection() *Connection { return d.conn }

// MarkFunction records, at construction time, whether generated code for
// functionID always expects a response, never does, or starts out
// suppressed/enabled and may be toggled by the application.
func (d *Device) MarkFunction(functionID uint8, flag ResponseExpectedFlag) {
	d.responseExpected[functionID] = flag
}

// GetResponseExpected reports whether functionID currently expects a
// response.
func (d *Device) GetResponseExpected(functionID uint8) (bool, error) {
	switch d.responseExpected[functionID] {
	case ResponseExpectedInvalidFunctionID:
		return false, &GetResponseExpectedError{FunctionID: functionID}
	case ResponseExpectedFalse:
		return false, nil
	default:
		return true, nil
	}
}

// SetResponseExpected toggles whether functionID expects a response. It
// fails for functions the device does not implement and for functions whose
// response can never be suppressed.
func (d *Device) SetResponseExpected(functionID uint8, enabled bool) error {
	switch d.responseExpected[functionID] {
	case ResponseExpectedInvalidFunctionID:
		return &SetResponseExpectedError{FunctionID: functionID}
	case ResponseExpectedAlwaysTrue:
		return &SetResponseExpectedError{FunctionID: functionID, IsAlwaysTrue: true}
	default:
		if enabled {
			d.responseExpected[functionID] = ResponseExpectedTrue
		} else {
			d.responseExpected[functionID] = ResponseExpectedFalse
		}
		return nil
	}
}

// SetResponseExpectedAll toggles every toggleable function at once, leaving
// AlwaysTrue and unimplemented functions untouched.
func (d *Device) SetResponseExpectedAll(enabled bool) {
	for fn, flag := range d.responseExpected {
		if flag == ResponseExpectedTrue || flag == ResponseExpectedFalse {
			if enabled {
				d.responseExpected[fn] = ResponseExpectedTrue
			} else {
				d.responseExpected[fn] = ResponseExpectedFalse
			}
		}
	}
}

func (d *Device) responseExpectedFor(functionID uint8) bool {
	flag := d.responseExpected[functionID]
	return flag == ResponseExpectedTrue || flag == ResponseExpectedAlwaysTrue
}

// HighLevelLock returns the mutex generated high-level wrappers must hold
// for the duration of one chunked exchange on functionID, so concurrent
// callers can not interleave chunks of two different high-level calls to
// the same function.
func (d *Device) HighLevelLock(functionID uint8) *sync.Mutex {
	d.hlMu.Lock()
	defer d.hlMu.Unlock()
	if d.hlLocks == nil {
		d.hlLocks = make(map[uint8]*sync.Mutex)
	}
	m, ok := d.hlLocks[functionID]
	if !ok {
		m = &sync.Mutex{}
		d.hlLocks[functionID] = m
	}
	return m
}

// Set issues a setter call. If functionID's response is currently
// suppressed, the returned Receiver resolves immediately with
// ErrCodeSuccessButResponseExpectedIsDisabled instead of waiting on the
// wire, so callers can use the same Receiver API regardless of the flag.
func Set[R any](d *Device, functionID uint8, payload []byte, decode Decoder[R]) *Receiver[R] {
	expected := d.responseExpectedFor(functionID)

	var sink chan responseResult
	if expected {
		sink = make(chan responseResult, 1)
	}
	ack := make(ackChan, 1)
	d.conn.send(setReq{uid: d.uid, fn: functionID, payload: payload, responseSink: sink, ack: ack})
	timeout := <-ack

	if !expected {
		immediate := make(chan responseResult, 1)
		immediate <- responseResult{err: ErrCodeSuccessButResponseExpectedIsDisabled, isErr: true}
		return newReceiver(immediate, decode, timeout)
	}
	return newReceiver(sink, decode, timeout)
}

// Get issues a getter call, which always expects a response.
func Get[R any](d *Device, functionID uint8, payload []byte, decode Decoder[R]) *Receiver[R] {
	sink := make(chan responseResult, 1)
	ack := make(ackChan, 1)
	d.conn.send(getReq{uid: d.uid, fn: functionID, payload: payload, responseSink: sink, ack: ack})
	timeout := <-ack
	return newReceiver(sink, decode, timeout)
}

// RegisterCallback subscribes to every future callback functionID fires.
func RegisterCallback[T any](d *Device, functionID uint8, decode Decoder[T]) *CallbackReceiver[T] {
	sink := newSubscriberSink[[]byte](callbackQueueDepth)
	ack := make(ackChan, 1)
	d.conn.send(registerCallbackReq{uid: d.uid, fn: functionID, sink: sink, ack: ack})
	<-ack
	return newCallbackReceiver(sink, decode)
}

// RegisterHighLevelCallback subscribes to a chunked streaming callback on
// functionID, reassembling chunks into full arrays before handing them to
// the caller.
func RegisterHighLevelCallback[P any, R any](d *Device, functionID uint8, decode StreamFrameDecoder[P, R]) *HighLevelCallbackReceiver[P, R] {
	sink := newSubscriberSink[[]byte](callbackQueueDepth)
	ack := make(ackChan, 1)
	d.conn.send(registerCallbackReq{uid: d.uid, fn: functionID, sink: sink, ack: ack})
	<-ack
	return newHighLevelCallbackReceiver(sink, decode)
}

// callbackQueueDepth bounds how many callback payloads can be buffered for
// a subscriber before the worker starts dropping them, per spec.md section
// 9's "drop on first send failure" fan-out semantics.
const callbackQueueDepth = 20
