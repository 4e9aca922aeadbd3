package ipconnection

import "sync/atomic"

// subscriberSink is a durable, multi-shot subscription channel. It is the
// Go rendition of the mpsc::Sender entries the Rust source keeps in its
// registries: spec.md section 9 requires the registry to "treat a closed
// subscriber channel as a subscription cancellation", which in Go becomes
// "treat a full or retired channel as a subscription cancellation" since
// there is no receiver-dropped signal to observe directly.
type subscriberSink[T any] struct {
	ch     chan T
	closed atomic.Bool
}

func newSubscriberSink[T any](depth int) *subscriberSink[T] {
	return &subscriberSink[T]{ch: make(chan T, depth)}
}

// trySend attempts a non-blocking delivery. It reports whether the
// subscription is still live; a false return means the caller should drop
// this sink from its registry.
func (s *subscriberSink[T]) trySend(v T) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

// retire marks the sink dead and closes its channel, waking any blocked
// Recv call with a zero value and ok=false. Only the socket worker calls
// this, and only once, at final teardown.
func (s *subscriberSink[T]) retire() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

type seqKey struct {
	uid uint32
	fn  uint8
	seq uint8
}

type cbKey struct {
	uid uint32
	fn  uint8
}

// dispatchTables holds every piece of state the socket worker dispatches
// through. It is owned exclusively by the worker goroutine: no other
// goroutine ever reads or writes it, so it needs no locking (spec.md
// section 5).
type dispatchTables struct {
	// responseQueues maps (uid, fn, seq) to a FIFO queue of one-shot
	// response sinks. A queue, not a single sink, because a request that is
	// never answered keeps its sink registered, and once the 4-bit sequence
	// number wraps within the same session a later request can be
	// registered against the same key; the oldest sink receives the next
	// matching response. Sinks never outlive their session:
	// drainResponseQueues closes them before the next connect.
	responseQueues map[seqKey][]chan responseResult
	callbacks      map[cbKey][]*subscriberSink[[]byte]
	connectSubs    []*subscriberSink[ConnectReason]
	disconnectSubs []*subscriberSink[DisconnectReason]
	enumerateSubs  []*subscriberSink[[]byte]
}

func newDispatchTables() *dispatchTables {
	return &dispatchTables{
		responseQueues: make(map[seqKey][]chan responseResult),
		callbacks:      make(map[cbKey][]*subscriberSink[[]byte]),
	}
}

func (d *dispatchTables) registerCallback(uid uint32, fn uint8, sink *subscriberSink[[]byte]) {
	key := cbKey{uid, fn}
	d.callbacks[key] = append(d.callbacks[key], sink)
}

func (d *dispatchTables) addResponseSink(uid uint32, fn uint8, seq uint8, sink chan responseResult) {
	key := seqKey{uid, fn, seq}
	d.responseQueues[key] = append(d.responseQueues[key], sink)
}

// popResponseSink removes and returns the oldest sink registered for key, if
// any, cleaning up the map entry when its queue empties.
func (d *dispatchTables) popResponseSink(uid uint32, fn uint8, seq uint8) (chan responseResult, bool) {
	key := seqKey{uid, fn, seq}
	queue, ok := d.responseQueues[key]
	if !ok || len(queue) == 0 {
		return nil, false
	}
	sink := queue[0]
	queue = queue[1:]
	if len(queue) == 0 {
		delete(d.responseQueues, key)
	} else {
		d.responseQueues[key] = queue
	}
	return sink, true
}

func (d *dispatchTables) fanoutCallback(uid uint32, fn uint8, payload []byte) {
	key := cbKey{uid, fn}
	subs := d.callbacks[key]
	if len(subs) == 0 {
		return
	}
	kept := subs[:0]
	for _, s := range subs {
		if s.trySend(payload) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(d.callbacks, key)
	} else {
		d.callbacks[key] = kept
	}
}

func (d *dispatchTables) fanoutEnumerate(payload []byte) {
	d.enumerateSubs = retainLive(d.enumerateSubs, payload)
}

func (d *dispatchTables) fanoutConnect(reason ConnectReason) {
	d.connectSubs = retainLive(d.connectSubs, reason)
}

func (d *dispatchTables) fanoutDisconnect(reason DisconnectReason) {
	d.disconnectSubs = retainLive(d.disconnectSubs, reason)
}

func retainLive[T any](subs []*subscriberSink[T], v T) []*subscriberSink[T] {
	kept := subs[:0]
	for _, s := range subs {
		if s.trySend(v) {
			kept = append(kept, s)
		}
	}
	return kept
}

// drainResponseQueues closes every outstanding Set/Get response sink and
// empties the table. Called once per outer-loop iteration, mirroring the
// Rust source's response_queues being a fresh HashMap local to the top of
// its 'thread loop: the old map, and every Sender an in-flight request was
// still holding, simply goes out of scope when a session ends. The Go
// equivalent of a dropped Sender is a closed channel, so any Receiver still
// waiting on one of these sinks observes QueueDisconnected rather than a
// synthesized error value -- a sequence number is only meaningful within
// the session that allocated it, and no later session's responses can ever
// match it.
func (d *dispatchTables) drainResponseQueues() {
	for key, queue := range d.responseQueues {
		for _, sink := range queue {
			close(sink)
		}
		delete(d.responseQueues, key)
	}
}

// retireAll closes every outstanding sink the tables know about. Called once
// by the worker when it leaves the outer loop for good (Terminate), so that
// every Receiver/CallbackReceiver the application still holds observes
// QueueDisconnected rather than hanging forever (spec.md invariant 5).
func (d *dispatchTables) retireAll() {
	for key, queue := range d.responseQueues {
		for _, sink := range queue {
			close(sink)
		}
		delete(d.responseQueues, key)
	}
	for key, subs := range d.callbacks {
		for _, s := range subs {
			s.retire()
		}
		delete(d.callbacks, key)
	}
	for _, s := range d.connectSubs {
		s.retire()
	}
	d.connectSubs = nil
	for _, s := range d.disconnectSubs {
		s.retire()
	}
	d.disconnectSubs = nil
	for _, s := range d.enumerateSubs {
		s.retire()
	}
	d.enumerateSubs = nil
}
