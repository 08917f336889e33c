package periph

// The access table holds one entry per characteristic with a GATT request in
// flight. Concurrent readers coalesce onto a single wire read; writers are
// strictly serialized; readers and writers never interleave on the same
// characteristic. Requesters parked behind an entry wake in FIFO order.

type readResult struct {
	value []byte
	err   error
}

// readWaiter receives the outcome of an in-flight read. Buffered so the
// resolver never blocks on an abandoned caller.
type readWaiter chan readResult

// writeCompleter receives the outcome of an in-flight write-with-response.
type writeCompleter chan error

// resumer wakes a caller parked on the write-without-response gate. It
// carries no result; the woken caller re-enters the gate.
type resumer chan struct{}

// queuedResumer parks a requester behind an in-flight access entry. Wake-ups
// are handed out one at a time: the waker blocks on done until the woken
// requester has finished its re-entry step (installing its own entry,
// attaching to one, or re-queueing). That keeps re-entry in strict insertion
// order even though requesters run on independent goroutines.
type queuedResumer struct {
	wake chan struct{}
	done chan struct{}
}

func newQueuedResumer() *queuedResumer {
	return &queuedResumer{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// wakeInOrder resumes parked requesters in insertion order, waiting for each
// to complete its re-entry step before waking the next. Must not be called
// with the coordinator mutex held.
func wakeInOrder(queued []*queuedResumer) {
	for _, q := range queued {
		q.wake <- struct{}{}
		<-q.done
	}
}

type accessEntry interface {
	// drainQueued returns the parked resumers so disconnect cleanup and
	// completion handlers wake them in insertion order.
	drainQueued() []*queuedResumer
	// park appends a requester to the entry's wait queue.
	park(q *queuedResumer)
	// unpark removes a requester that gave up waiting; reports whether it
	// was still queued.
	unpark(q *queuedResumer) bool
}

// readAccess is installed while a GATT read is in flight. Additional readers
// attach to waiters (coalescing); writers park in queued.
type readAccess struct {
	waiters []readWaiter
	queued  []*queuedResumer
}

func (r *readAccess) drainQueued() []*queuedResumer { return r.queued }

func (r *readAccess) park(q *queuedResumer) { r.queued = append(r.queued, q) }

func (r *readAccess) unpark(q *queuedResumer) bool {
	var ok bool
	r.queued, ok = removeQueued(r.queued, q)
	return ok
}

// writeAccess is installed while a write-with-response is in flight. Readers
// and further writers park in queued.
type writeAccess struct {
	completer writeCompleter
	queued    []*queuedResumer
}

func (w *writeAccess) drainQueued() []*queuedResumer { return w.queued }

func (w *writeAccess) park(q *queuedResumer) { w.queued = append(w.queued, q) }

func (w *writeAccess) unpark(q *queuedResumer) bool {
	var ok bool
	w.queued, ok = removeQueued(w.queued, q)
	return ok
}

// resolveReaders delivers the same outcome to every coalesced waiter. Each
// waiter gets its own copy of the payload.
func resolveReaders(waiters []readWaiter, value []byte, err error) {
	for _, w := range waiters {
		var data []byte
		if err == nil {
			data = append([]byte(nil), value...)
		}
		w <- readResult{value: data, err: err}
	}
}

func removeReadWaiter(waiters []readWaiter, w readWaiter) []readWaiter {
	for i, cand := range waiters {
		if cand == w {
			return append(waiters[:i], waiters[i+1:]...)
		}
	}
	return waiters
}

func removeQueued(queued []*queuedResumer, q *queuedResumer) ([]*queuedResumer, bool) {
	for i, cand := range queued {
		if cand == q {
			return append(queued[:i], queued[i+1:]...), true
		}
	}
	return queued, false
}

func removeResumer(queued []resumer, q resumer) []resumer {
	for i, cand := range queued {
		if cand == q {
			return append(queued[:i], queued[i+1:]...)
		}
	}
	return queued
}
