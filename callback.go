package ipconnection

import "iter"

// CallbackReceiver is a durable, multi-shot typed view onto every callback a
// device fires for one function ID, the Go translation of the source's
// callback Receiver. Unlike Receiver it never times out: callbacks arrive
// whenever the device chooses to send them.
type CallbackReceiver[T any] struct {
	sink   *subscriberSink[[]byte]
	decode Decoder[T]
}

func newCallbackReceiver[T any](sink *subscriberSink[[]byte], decode Decoder[T]) *CallbackReceiver[T] {
	return &CallbackReceiver[T]{sink: sink, decode: decode}
}

// Recv blocks until the next callback value arrives or the connection is
// torn down.
func (c *CallbackReceiver[T]) Recv() (T, CallbackRecvError, bool) {
	var zero T
	payload, ok := <-c.sink.ch
	if !ok {
		return zero, CallbackRecvErrQueueDisconnected, false
	}
	v, err := c.decode(payload)
	if err != nil {
		return zero, CallbackRecvErrMalformedPacket, false
	}
	return v, 0, true
}

// TryRecv returns immediately with whatever is already queued.
func (c *CallbackReceiver[T]) TryRecv() (T, CallbackTryRecvError, bool) {
	var zero T
	select {
	case payload, ok := <-c.sink.ch:
		if !ok {
			return zero, CallbackTryRecvErrQueueDisconnected, false
		}
		v, err := c.decode(payload)
		if err != nil {
			return zero, CallbackTryRecvErrMalformedPacket, false
		}
		return v, 0, true
	default:
		return zero, CallbackTryRecvErrQueueEmpty, false
	}
}

// Iter ranges over every callback value until the connection is torn down,
// the Go rendition of the source's blocking IntoIterator impl using
// range-over-func.
func (c *CallbackReceiver[T]) Iter() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, _, ok := c.Recv()
			if !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}
