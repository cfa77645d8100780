package receiver

import (
	"context"
	"sync"

	logpkg "github.com/rzbill/flume/pkg/log"
)

// Subscription drives the demand→fetch→emit loop for one stream. Demand
// signals, fetch completions, and cancellation may arrive concurrently from
// independent goroutines; coordination is lock-free except for the overflow
// queue and the serializing emitter.
//
// States: idle (no fetch outstanding) → fetching (schedule gate held) →
// idle, re-evaluated on completion → cancelled (terminal, via Cancel or a
// fetch error).
type Subscription struct {
	stream   string
	state    *pollState
	overflow *overflowQueue
	read     ReadFunc
	out      *emitter
	logger   logpkg.Logger
	filter   *celFilter
	metrics  *Metrics

	// ctx bounds fetch calls. Cancel does not abort an in-flight fetch;
	// its results are dropped by the post-cancel guards instead.
	ctx context.Context

	// drainMu keeps buffer drains single-file so concurrent demand
	// signals cannot interleave buffered emissions out of order.
	drainMu sync.Mutex
}

func newSubscription(ctx context.Context, off StreamOffset, c *Consumer, read ReadFunc, sub Subscriber, logger logpkg.Logger, filter *celFilter, metrics *Metrics) *Subscription {
	return &Subscription{
		stream:   off.Stream,
		state:    newPollState(off.Offset, c),
		overflow: newOverflowQueue(),
		read:     read,
		out:      newEmitter(sub),
		logger:   logger.With(logpkg.Str("stream", off.Stream)),
		filter:   filter,
		metrics:  metrics,
		ctx:      ctx,
	}
}

// Request adds n units of downstream demand. Pass Unbounded to switch the
// subscription to unbounded demand permanently. Requests with n <= 0 and
// requests after cancellation are ignored.
func (s *Subscription) Request(n int64) {
	if !s.state.isActive() {
		s.logger.Debug("request dropped, subscription canceled", logpkg.Int64("n", n))
		return
	}
	if n <= 0 {
		s.logger.Debug("request ignored, non-positive demand", logpkg.Int64("n", n))
		return
	}
	if u := s.state.addDemand(n); u > 0 {
		s.logger.Debug("request", logpkg.Int64("n", n), logpkg.Int64("demand", u))
		s.scheduleIfRequired()
	}
}

// Cancel terminates the subscription. Idempotent. An in-flight fetch is not
// aborted; whatever it returns is discarded.
func (s *Subscription) Cancel() {
	if s.state.cancel() {
		s.logger.Debug("cancel")
	}
	s.out.stop()
}

// Active reports whether the subscription can still emit.
func (s *Subscription) Active() bool { return s.state.isActive() }

// Demand returns the current outstanding demand.
func (s *Subscription) Demand() int64 { return s.state.requestedNow() }

// Buffered returns the number of fetched messages awaiting demand. The
// buffer is unbounded: a producing source with zero downstream demand grows
// it without limit.
func (s *Subscription) Buffered() int { return s.overflow.size() }

// scheduleIfRequired is the scheduling check: drain the buffer against
// available demand, then issue the next fetch if demand remains and no
// fetch is outstanding. Idempotent; called from demand signals and from
// fetch completion.
func (s *Subscription) scheduleIfRequired() {
	if s.state.isScheduled() {
		s.logger.Debug("scheduleIfRequired: already scheduled")
		return
	}
	if !s.state.isActive() {
		s.logger.Debug("scheduleIfRequired: subscription canceled")
		return
	}

	if s.state.requestedNow() > 0 && !s.overflow.empty() {
		s.logger.Debug("scheduleIfRequired: emitting from buffer",
			logpkg.Int64("demand", s.state.requestedNow()),
			logpkg.Int("buffered", s.overflow.size()))
		s.emitBuffer()
	}

	if s.state.requestedNow() == 0 {
		s.logger.Debug("scheduleIfRequired: no demand, suspending")
		return
	}

	if s.state.activateSchedule() {
		cur := s.state.currentCursor()
		s.logger.Debug("scheduleIfRequired: activating fetch", logpkg.Str("cursor", string(cur)))
		s.metrics.incFetches(s.stream)
		go s.poll(cur)
	}
}

// poll performs one fetch cycle: read a batch at cur, feed every message
// through the arrival path, release the schedule gate, re-evaluate.
func (s *Subscription) poll(cur Cursor) {
	msgs, err := s.read(s.ctx, s.stream, cur)
	if err != nil {
		s.onStreamError(err)
		return
	}
	for _, m := range msgs {
		s.onStreamMessage(m)
	}
	s.logger.Debug("fetch complete", logpkg.Int("n", len(msgs)))
	s.state.scheduleCompleted()
	s.scheduleIfRequired()
}

// onStreamMessage handles one fetched message in arrival order: advance the
// cursor unconditionally, then emit (fast path on unbounded demand, CAS
// decrement otherwise) or push to the overflow buffer.
func (s *Subscription) onStreamMessage(m Message) {
	s.state.advanceCursor(m.ID)

	if !s.state.isActive() {
		s.logger.Debug("message dropped, subscription canceled", logpkg.Str("id", m.ID))
		return
	}
	if s.filter != nil && !s.filter.Eval(m) {
		s.logger.Debug("message filtered", logpkg.Str("id", m.ID))
		return
	}

	requested := s.state.requestedNow()
	if requested > 0 {
		if requested == Unbounded {
			s.logger.Debug("emitting, fast path", logpkg.Str("id", m.ID))
			s.metrics.incEmitted(s.stream)
			s.out.next(m)
			return
		}
		if s.state.decrementRequested() {
			s.logger.Debug("emitting, slow path", logpkg.Str("id", m.ID))
			s.metrics.incEmitted(s.stream)
			s.out.next(m)
			return
		}
	}
	s.logger.Debug("buffering overflow", logpkg.Str("id", m.ID))
	s.metrics.incBuffered(s.stream)
	s.overflow.push(m)
}

// onStreamError deactivates the subscription and propagates the single
// terminal error. No retry: resubscription is the caller's concern.
func (s *Subscription) onStreamError(err error) {
	s.logger.Debug("fetch error", logpkg.Err(err))
	s.metrics.incFetchErrors(s.stream)
	s.state.cancel()
	s.out.fail(err)
}

// emitBuffer drains buffered messages while demand allows. On bounded
// demand each pop is paid for with a CAS decrement first; when the pop then
// finds the queue empty (a benign race with a concurrent append) the unit
// is restored and the pass ends.
func (s *Subscription) emitBuffer() {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	for !s.overflow.empty() {
		demand := s.state.requestedNow()
		if demand <= 0 {
			break
		}

		if demand == Unbounded {
			m, ok := s.overflow.pop()
			if !ok {
				s.logger.Debug("emitBuffer: emission missed")
				break
			}
			s.metrics.incDrained(s.stream)
			s.out.next(m)
			continue
		}

		if s.state.setRequested(demand, demand-1) {
			m, ok := s.overflow.pop()
			if !ok {
				s.logger.Debug("emitBuffer: emission missed, restoring demand")
				s.state.incrementRequested()
				break
			}
			s.metrics.incDrained(s.stream)
			s.out.next(m)
		}
	}
}
