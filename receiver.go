package ipconnection

import "time"

// Decoder turns a raw response payload into a typed value. Generated
// per-function bindings supply these; this package only needs the shape.
type Decoder[T any] func([]byte) (T, error)

// conversionOutcome is the result of matching a raw responseResult against a
// Decoder, before it gets narrowed into whichever error enum the caller
// (Recv or TryRecv) needs.
type conversionOutcome int

const (
	outcomeOK conversionOutcome = iota
	outcomeBrickletError
	outcomeMalformed
)

// Receiver is a one-shot typed view onto a single Set or Get response,
// the Go translation of the source's ConvertingReceiver<T>.
type Receiver[T any] struct {
	ch      chan responseResult
	decode  Decoder[T]
	timeout time.Duration
	sent    time.Time
}

func newReceiver[T any](ch chan responseResult, decode Decoder[T], timeout time.Duration) *Receiver[T] {
	return &Receiver[T]{ch: ch, decode: decode, timeout: timeout, sent: time.Now()}
}

// Recv blocks until the response arrives, the request's timeout (measured
// from when it was sent, not from when Recv was called) elapses, or the
// connection is torn down.
func (r *Receiver[T]) Recv() (T, RecvError, bool) {
	var zero T
	remaining := time.Until(r.sent.Add(r.timeout))
	if remaining <= 0 {
		return zero, RecvErrQueueTimeout, false
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case res, ok := <-r.ch:
		if !ok {
			return zero, RecvErrQueueDisconnected, false
		}
		v, outcome, brickletErr := r.convert(res)
		if outcome == outcomeOK {
			return v, 0, true
		}
		if outcome == outcomeMalformed {
			return zero, RecvErrMalformedPacket, false
		}
		return zero, recvErrorFromBrickletError(brickletErr), false
	case <-timer.C:
		return zero, RecvErrQueueTimeout, false
	}
}

// TryRecv returns immediately: the response if one is already queued, or
// TryRecvErrQueueEmpty if not.
func (r *Receiver[T]) TryRecv() (T, TryRecvError, bool) {
	var zero T
	select {
	case res, ok := <-r.ch:
		if !ok {
			return zero, TryRecvErrQueueDisconnected, false
		}
		v, outcome, brickletErr := r.convert(res)
		if outcome == outcomeOK {
			return v, 0, true
		}
		if outcome == outcomeMalformed {
			return zero, TryRecvErrMalformedPacket, false
		}
		return zero, tryRecvErrorFromBrickletError(brickletErr), false
	default:
		return zero, TryRecvErrQueueEmpty, false
	}
}

func (r *Receiver[T]) convert(res responseResult) (T, conversionOutcome, BrickletError) {
	var zero T
	if res.isErr {
		return zero, outcomeBrickletError, res.err
	}
	v, err := r.decode(res.payload)
	if err != nil {
		return zero, outcomeMalformed, 0
	}
	return v, outcomeOK, 0
}
