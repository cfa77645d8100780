package receiver

// readStrategy decides the first and each subsequent read cursor for a
// subscription. The variant is fixed at subscription creation from the
// initial offset and never changes.
type readStrategy int

const (
	// strategyNextMessage resumes after the last observed message.
	strategyNextMessage readStrategy = iota
	// strategyLastConsumed defers position tracking to the source's
	// consumer-group cursor when a consumer identity is present.
	strategyLastConsumed
	// strategyLatest re-reads from the tail on every fetch, ignoring
	// prior progress.
	strategyLatest
)

// strategyFor selects the strategy for an initial offset. The sentinels
// match exactly; any other cursor selects NextMessage.
func strategyFor(off Cursor) readStrategy {
	switch off {
	case Latest:
		return strategyLatest
	case LastConsumed:
		return strategyLastConsumed
	default:
		return strategyNextMessage
	}
}

func (s readStrategy) String() string {
	switch s {
	case strategyNextMessage:
		return "next-message"
	case strategyLastConsumed:
		return "last-consumed"
	case strategyLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// first returns the cursor for the initial fetch.
func (s readStrategy) first(off Cursor, c *Consumer) Cursor {
	switch s {
	case strategyLastConsumed:
		if c != nil {
			return LastConsumed
		}
		return Latest
	case strategyLatest:
		return Latest
	default:
		return off
	}
}

// next returns the cursor to store after observing the message with lastID.
// Fetches are exclusive of the cursor, so a plain message ID already
// addresses its successor.
func (s readStrategy) next(c *Consumer, lastID string) Cursor {
	switch s {
	case strategyLastConsumed:
		if c != nil {
			return LastConsumed
		}
		return Cursor(lastID)
	case strategyLatest:
		return Latest
	default:
		return Cursor(lastID)
	}
}
