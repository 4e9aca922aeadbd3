package ipconnection

import "time"

// ackChan carries back the timeout that was in effect when a request was
// placed on the wire (or cancelled), so the typed receiver the caller holds
// uses the timeout that applied at send time rather than whatever the
// connection-wide timeout happens to be when the receiver later blocks.
type ackChan = chan time.Duration

// responseResult is what the socket worker posts into a Set/Get response
// sink: either the raw payload bytes, or the wire error code the daemon
// reported for this request.
type responseResult struct {
	payload []byte
	err     BrickletError
	isErr   bool
}

// workerRequest is the closed set of messages the socket worker accepts,
// the Go rendition of the tagged Request/SocketThreadRequest enums in
// spec.md section 4.3 and the Rust source it is grounded on. There is no
// sum type in Go, so this is a marker interface dispatched with a type
// switch in the worker's select loop.
type workerRequest interface {
	isWorkerRequest()
}

// setReq is a write-only or response-expected setter. responseSink is nil
// for write-only setters (response-expected disabled).
type setReq struct {
	uid          uint32
	fn           uint8
	payload      []byte
	responseSink chan responseResult
	ack          ackChan
}

func (setReq) isWorkerRequest() {}

// getReq always expects a response.
type getReq struct {
	uid          uint32
	fn           uint8
	payload      []byte
	responseSink chan responseResult
	ack          ackChan
}

func (getReq) isWorkerRequest() {}

type registerCallbackReq struct {
	uid  uint32
	fn   uint8
	sink *subscriberSink[[]byte]
	ack  ackChan
}

func (registerCallbackReq) isWorkerRequest() {}

type registerConnectReq struct {
	sink *subscriberSink[ConnectReason]
	ack  ackChan
}

func (registerConnectReq) isWorkerRequest() {}

type registerDisconnectReq struct {
	sink *subscriberSink[DisconnectReason]
	ack  ackChan
}

func (registerDisconnectReq) isWorkerRequest() {}

type registerEnumerateReq struct {
	sink *subscriberSink[[]byte]
	ack  ackChan
}

func (registerEnumerateReq) isWorkerRequest() {}

type connectReq struct {
	host string
	port uint16
	done chan error
}

func (connectReq) isWorkerRequest() {}

type disconnectReq struct {
	done chan error
}

func (disconnectReq) isWorkerRequest() {}

// socketClosedReq is injected by the reader goroutine, never by application
// code.
type socketClosedReq struct {
	sessionID uint64
	graceful  bool
}

func (socketClosedReq) isWorkerRequest() {}

// responseReq is injected by the reader goroutine for every decoded frame.
type responseReq struct {
	header  PacketHeader
	payload []byte
}

func (responseReq) isWorkerRequest() {}

type setTimeoutReq struct{ timeout time.Duration }

func (setTimeoutReq) isWorkerRequest() {}

type setAutoReconnectReq struct{ enabled bool }

func (setAutoReconnectReq) isWorkerRequest() {}

// triggerAutoReconnectReq asks the worker to retry connecting to the last
// known target immediately, instead of waiting out the rest of the current
// poll interval. It carries no address of its own: the worker always redials
// the target remembered from the most recent successful Connect.
type triggerAutoReconnectReq struct{}

func (triggerAutoReconnectReq) isWorkerRequest() {}

type terminateReq struct{}

func (terminateReq) isWorkerRequest() {}

// cancelRequest delivers ErrCodeNotConnected to a Set/Get request's response
// sink. Used by the outer (disconnected) loop for any request that needs a
// live socket.
func cancelRequest(req workerRequest) {
	switch r := req.(type) {
	case setReq:
		if r.responseSink != nil {
			r.responseSink <- responseResult{err: ErrCodeNotConnected, isErr: true}
		}
	case getReq:
		r.responseSink <- responseResult{err: ErrCodeNotConnected, isErr: true}
	}
}
