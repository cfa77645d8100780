package receiver

import (
	"context"
	"math"
	"time"
)

// Cursor is an opaque position in an ordered log. A fetch at cursor c
// returns messages strictly after c; how a cursor maps to a source position
// is the source's business. Two sentinel values are distinguished by
// identity and handled specially by the read strategies.
type Cursor string

const (
	// Latest addresses the tail of the stream: only messages appended
	// after the fetch call are returned.
	Latest Cursor = "$"

	// LastConsumed addresses the position tracked by the source for a
	// consumer group (last-acknowledged-by-broker).
	LastConsumed Cursor = ">"
)

// Unbounded is the demand sentinel: a subscription with unbounded demand
// emits every fetched message immediately.
const Unbounded int64 = math.MaxInt64

// Message is one record read from a stream. ID is the source-assigned
// ordering key; IDs observed by the receiver are non-decreasing in fetch
// arrival order.
type Message struct {
	ID      string
	Stream  string
	Payload []byte
	Headers map[string]string
}

// Consumer identifies a member of a consumer group.
type Consumer struct {
	Group string
	Name  string
}

// StreamOffset names a stream together with the initial read position.
type StreamOffset struct {
	Stream string
	Offset Cursor
}

// FromStart returns a StreamOffset reading s from its beginning.
func FromStart(s string) StreamOffset { return StreamOffset{Stream: s, Offset: "0"} }

// FromLatest returns a StreamOffset reading only new messages of s.
func FromLatest(s string) StreamOffset { return StreamOffset{Stream: s, Offset: Latest} }

// FromLastConsumed returns a StreamOffset resuming s at the source-tracked
// group position.
func FromLastConsumed(s string) StreamOffset { return StreamOffset{Stream: s, Offset: LastConsumed} }

// Subscriber receives messages and the terminal error signal. OnMessage is
// never called concurrently and never after Cancel or OnError. There is no
// completion callback: the stream is treated as unbounded.
type Subscriber interface {
	OnMessage(msg Message)
	OnError(err error)
}

// ReadOptions carry the source-side fetch configuration. They bound a
// single fetch, independent of downstream demand.
type ReadOptions struct {
	// BatchSize is the maximum number of messages one fetch returns.
	BatchSize int
	// Block is how long the source may wait for at least one message.
	// Zero means a single non-blocking attempt.
	Block time.Duration
}

// AckMode selects how a consumer-group read tracks deliveries.
type AckMode int

const (
	// AckAuto reads without delivery tracking; the source considers a
	// message consumed as soon as it is handed out.
	AckAuto AckMode = iota
	// AckManual reads with delivery tracking; the caller acknowledges
	// through the source's Acker.
	AckManual
)

// Source is the batched read capability a receiver is built on.
type Source interface {
	// Read fetches up to opts.BatchSize messages strictly after cur.
	Read(ctx context.Context, stream string, cur Cursor, opts ReadOptions) ([]Message, error)

	// ReadGroup fetches on behalf of a consumer group member. A cur of
	// LastConsumed resumes at the source-tracked group position.
	ReadGroup(ctx context.Context, c Consumer, stream string, cur Cursor, opts ReadOptions, mode AckMode) ([]Message, error)
}

// Acker is implemented by sources that support AckManual reads.
type Acker interface {
	Ack(ctx context.Context, c Consumer, stream string, ids ...string) error
}

// ReadFunc is one bound fetch variant: a batched read at a cursor. The
// orchestrator treats it as an asynchronous operation by running it on its
// own goroutine.
type ReadFunc func(ctx context.Context, stream string, cur Cursor) ([]Message, error)
