package ipconnection

import "iter"

// StreamFrame is one chunk of a high-level streaming exchange: a low-level
// function call or callback that carries a slice of a larger array spread
// across several wire frames because it would not fit in one 80-byte frame.
// Fixed holds whatever non-streamed fields travel alongside the chunk (a
// device-specific result or status value); it is decoded fresh from every
// frame but only the first/last one's value is meaningful to the caller,
// mirroring the per-device bindings this package does not generate.
type StreamFrame[P any, R any] struct {
	TotalLength int
	ChunkOffset int
	ChunkData   []P
	Fixed       R
}

// StreamFrameDecoder decodes one wire payload into a StreamFrame.
type StreamFrameDecoder[P any, R any] func([]byte) (StreamFrame[P, R], error)

// LowLevelSetter issues one chunk of a high-level write. Called repeatedly
// by SetHighLevel with increasing offsets until the whole array has been
// sent.
type LowLevelSetter[P any, R any] func(totalLength int, chunkOffset int, chunkData []P) (*Receiver[R], error)

// LowLevelGetter issues one low-level Get call and returns the chunk it
// answers with. Called repeatedly by GetHighLevel, with no arguments of its
// own, until the whole array has been read back -- the Go translation of the
// source's FnMut() -> Result<LlrT, ...> closure.
type LowLevelGetter[P any, R any] func() (*Receiver[StreamFrame[P, R]], error)

// GetHighLevel repeatedly calls get and reassembles the chunks it returns
// into one array, the Go translation of the source's Device::get_high_level.
// A first reply with a nonzero chunk offset, or a later reply whose offset
// or total length does not match what's expected, means the stream has lost
// synchronization with some earlier, unrelated exchange: GetHighLevel then
// drains the wire replies the sender still expects to receive (so they
// don't land on some future request) and reports RecvErrMalformedPacket.
func GetHighLevel[P any, R any](get LowLevelGetter[P, R]) ([]P, R, RecvError, error) {
	var zero R

	recv, err := get()
	if err != nil {
		return nil, zero, 0, err
	}
	frame, recvErr, ok := recv.Recv()
	if !ok {
		return nil, zero, recvErr, nil
	}

	chunkOffset := 0
	messageLength := frame.TotalLength
	outOfSync := frame.ChunkOffset != 0

	if !outOfSync {
		buf := make([]P, messageLength)
		firstReadLength := min(len(frame.ChunkData), messageLength-chunkOffset)
		copy(buf[chunkOffset:chunkOffset+firstReadLength], frame.ChunkData[:firstReadLength])
		chunkOffset += firstReadLength

		for chunkOffset < messageLength {
			recv, err = get()
			if err != nil {
				return nil, zero, 0, err
			}
			frame, recvErr, ok = recv.Recv()
			if !ok {
				return nil, zero, recvErr, nil
			}
			outOfSync = frame.ChunkOffset != chunkOffset || frame.TotalLength != messageLength
			if outOfSync {
				break
			}
			readLength := min(len(frame.ChunkData), messageLength-chunkOffset)
			copy(buf[chunkOffset:chunkOffset+readLength], frame.ChunkData[:readLength])
			chunkOffset += readLength
		}
		if !outOfSync {
			return buf, frame.Fixed, 0, nil
		}
	}

	for chunkOffset+len(frame.ChunkData) < messageLength {
		recv, err = get()
		if err != nil {
			return nil, zero, 0, err
		}
		frame, recvErr, ok = recv.Recv()
		if !ok {
			return nil, zero, recvErr, nil
		}
	}
	return nil, zero, RecvErrMalformedPacket, nil
}

// SetHighLevel splits data into chunkSize-sized pieces (zero-padding the
// final, short chunk) and feeds them through write in order, the Go
// translation of the source's Device::set_high_level. It returns the result
// of the final chunk's response, since that is the one the device considers
// authoritative for the whole stream.
func SetHighLevel[P any, R any](data []P, chunkSize int, write LowLevelSetter[P, R]) (R, RecvError, error) {
	var lastResult R
	totalLength := len(data)
	offset := 0

	for {
		end := offset + chunkSize
		var chunk []P
		if end > totalLength {
			chunk = make([]P, chunkSize)
			copy(chunk, data[offset:totalLength])
		} else {
			chunk = data[offset:end]
		}

		recv, err := write(totalLength, offset, chunk)
		if err != nil {
			return lastResult, 0, err
		}
		res, recvErr, ok := recv.Recv()
		if !ok {
			return lastResult, recvErr, nil
		}
		lastResult = res

		offset += chunkSize
		if offset >= totalLength {
			return lastResult, 0, nil
		}
	}
}

// HighLevelCallbackReceiver reassembles a sequence of StreamFrame chunks
// into full arrays, the Go translation of the source's
// ConvertingHighLevelCallbackReceiver. It is stateful and single-consumer:
// only one goroutine should call Recv/TryRecv/Iter on a given instance.
type HighLevelCallbackReceiver[P any, R any] struct {
	sink   *subscriberSink[[]byte]
	decode StreamFrameDecoder[P, R]

	buffer             []P
	wantLen            int
	nextExpectedOffset int
	gathering          bool
}

func newHighLevelCallbackReceiver[P any, R any](sink *subscriberSink[[]byte], decode StreamFrameDecoder[P, R]) *HighLevelCallbackReceiver[P, R] {
	return &HighLevelCallbackReceiver[P, R]{sink: sink, decode: decode}
}

// Recv blocks, consuming as many underlying chunk callbacks as it takes to
// complete one stream, and returns the reassembled array together with the
// fixed fields carried on the chunk that completed it.
func (h *HighLevelCallbackReceiver[P, R]) Recv() ([]P, R, CallbackRecvError, bool) {
	var zeroR R
	for {
		payload, ok := <-h.sink.ch
		if !ok {
			return nil, zeroR, CallbackRecvErrQueueDisconnected, false
		}
		frame, err := h.decode(payload)
		if err != nil {
			return nil, zeroR, CallbackRecvErrMalformedPacket, false
		}
		if data, result, complete := h.ingest(frame); complete {
			return data, result, 0, true
		}
	}
}

// TryRecv drains whatever chunks are already queued without blocking for
// more; it only returns a value once a full stream is assembled from what
// was available.
func (h *HighLevelCallbackReceiver[P, R]) TryRecv() ([]P, R, CallbackTryRecvError, bool) {
	var zeroR R
	for {
		select {
		case payload, ok := <-h.sink.ch:
			if !ok {
				return nil, zeroR, CallbackTryRecvErrQueueDisconnected, false
			}
			frame, err := h.decode(payload)
			if err != nil {
				return nil, zeroR, CallbackTryRecvErrMalformedPacket, false
			}
			if data, result, complete := h.ingest(frame); complete {
				return data, result, 0, true
			}
		default:
			return nil, zeroR, CallbackTryRecvErrQueueEmpty, false
		}
	}
}

// ingest folds one chunk into the in-progress buffer. Not currently
// gathering and the chunk starts mid-stream (offset != 0), or currently
// gathering and the chunk's offset or total length does not exactly match
// what this stream expects next, means the stream is out of sync with
// whatever produced this chunk: gathering state is reset and the chunk is
// dropped rather than ever folded into a buffer it does not belong to.
func (h *HighLevelCallbackReceiver[P, R]) ingest(frame StreamFrame[P, R]) ([]P, R, bool) {
	var zero R

	if !h.gathering && frame.ChunkOffset != 0 {
		return nil, zero, false
	}
	if h.gathering && (frame.ChunkOffset != h.nextExpectedOffset || frame.TotalLength != h.wantLen) {
		h.gathering = false
		return nil, zero, false
	}

	if !h.gathering {
		h.buffer = make([]P, frame.TotalLength)
		h.wantLen = frame.TotalLength
		h.nextExpectedOffset = 0
		h.gathering = true
	}

	readLength := min(len(frame.ChunkData), h.wantLen-h.nextExpectedOffset)
	copy(h.buffer[h.nextExpectedOffset:h.nextExpectedOffset+readLength], frame.ChunkData[:readLength])
	h.nextExpectedOffset += readLength

	if h.nextExpectedOffset >= h.wantLen {
		data := h.buffer[:h.wantLen]
		h.gathering = false
		return data, frame.Fixed, true
	}
	return nil, frame.Fixed, false
}

// Iter ranges over complete reassembled streams until the connection is
// torn down or a malformed chunk is seen.
func (h *HighLevelCallbackReceiver[P, R]) Iter() iter.Seq2[[]P, R] {
	return func(yield func([]P, R) bool) {
		for {
			data, result, _, ok := h.Recv()
			if !ok {
				return
			}
			if !yield(data, result) {
				return
			}
		}
	}
}
