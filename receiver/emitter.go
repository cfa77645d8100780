package receiver

import "sync"

// emitter serializes delivery to the downstream Subscriber and enforces the
// terminal contract: OnMessage calls never overlap, at most one OnError is
// ever delivered, and nothing is delivered after stop.
type emitter struct {
	mu   sync.Mutex
	sub  Subscriber
	done bool
}

func newEmitter(sub Subscriber) *emitter { return &emitter{sub: sub} }

// next delivers one message unless the emitter is terminated.
func (e *emitter) next(m Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.sub.OnMessage(m)
}

// fail terminates the emitter with err; only the first terminal signal is
// delivered.
func (e *emitter) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.sub.OnError(err)
}

// stop terminates the emitter silently. Used on cancellation so results of
// a fetch already in flight are discarded.
func (e *emitter) stop() {
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
}
