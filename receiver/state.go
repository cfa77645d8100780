package receiver

import "sync/atomic"

// pollState is the mutable, concurrency-safe record for one subscription:
// outstanding demand, the one-way active flag, the schedule gate that keeps
// a single fetch in flight, and the current read cursor. All mutation goes
// through atomic compare-and-set; no lock is held across a fetch.
type pollState struct {
	requested atomic.Int64
	active    atomic.Bool
	scheduled atomic.Bool
	cursor    atomic.Value // Cursor

	strategy readStrategy
	consumer *Consumer
}

// newPollState creates the state for a subscription starting at off,
// selecting the read strategy from the initial offset.
func newPollState(off Cursor, c *Consumer) *pollState {
	s := strategyFor(off)
	p := &pollState{strategy: s, consumer: c}
	p.active.Store(true)
	p.cursor.Store(s.first(off, c))
	return p
}

func (p *pollState) isActive() bool { return p.active.Load() }

// cancel flips active to false. The transition is one-way; cancel reports
// whether this call performed it, so terminal signals fire exactly once.
func (p *pollState) cancel() bool {
	return p.active.CompareAndSwap(true, false)
}

// requestedNow returns the current demand.
func (p *pollState) requestedNow() int64 { return p.requested.Load() }

// addDemand merges n into the demand counter with a saturating add: demand
// already at Unbounded stays there, and an overflowing sum caps at
// Unbounded. Returns the resulting demand.
func (p *pollState) addDemand(n int64) int64 {
	for {
		r := p.requested.Load()
		if r == Unbounded {
			return Unbounded
		}
		u := addCap(r, n)
		if p.requested.CompareAndSwap(r, u) {
			return u
		}
	}
}

// decrementRequested consumes one unit of demand. Returns false when demand
// was already exhausted.
func (p *pollState) decrementRequested() bool {
	demand := p.requested.Load()
	if demand > 0 {
		return p.requested.CompareAndSwap(demand, demand-1)
	}
	return false
}

// incrementRequested restores one unit of demand. Used as the compensation
// step when a buffer pop raced with an empty queue.
func (p *pollState) incrementRequested() {
	p.requested.Add(1)
}

// setRequested is a raw compare-and-set on the demand counter.
func (p *pollState) setRequested(expect, update int64) bool {
	return p.requested.CompareAndSwap(expect, update)
}

// activateSchedule acquires the schedule gate. It succeeds for exactly one
// caller per fetch cycle; the winner issues the fetch.
func (p *pollState) activateSchedule() bool {
	return p.scheduled.CompareAndSwap(false, true)
}

// scheduleCompleted releases the schedule gate.
func (p *pollState) scheduleCompleted() {
	p.scheduled.CompareAndSwap(true, false)
}

func (p *pollState) isScheduled() bool { return p.scheduled.Load() }

// currentCursor returns the cursor the next fetch should use.
func (p *pollState) currentCursor() Cursor {
	return p.cursor.Load().(Cursor)
}

// advanceCursor applies the strategy's next rule after observing id. Called
// in fetch-arrival order, independent of whether the message was emitted.
func (p *pollState) advanceCursor(id string) {
	p.cursor.Store(p.strategy.next(p.consumer, id))
}

// addCap adds two non-negative demands, capping at Unbounded on overflow.
func addCap(a, b int64) int64 {
	sum := a + b
	if sum < 0 {
		return Unbounded
	}
	return sum
}
