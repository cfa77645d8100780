package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/flume/internal/storage/pebble"
	"github.com/rzbill/flume/receiver"
)

var (
	_ receiver.Source = (*Log)(nil)
	_ receiver.Acker  = (*Log)(nil)
)

// Read fetches up to opts.BatchSize records strictly after cur. A cursor of
// Latest resolves to the stream tail at call time. When opts.Block is
// positive and no record is available the call waits that long for an append.
func (l *Log) Read(ctx context.Context, stream string, cur receiver.Cursor, opts receiver.ReadOptions) ([]receiver.Message, error) {
	if err := validateStream(stream); err != nil {
		return nil, err
	}
	after, err := l.resolve(stream, cur)
	if err != nil {
		return nil, err
	}
	return l.fetch(ctx, stream, after, opts)
}

// ReadGroup fetches on behalf of a consumer group member. A cursor of
// LastConsumed resumes after the group's delivered position. Delivered
// records advance the group position; with AckAuto they are acknowledged in
// the same step, with AckManual acknowledgement is left to Ack.
func (l *Log) ReadGroup(ctx context.Context, c receiver.Consumer, stream string, cur receiver.Cursor, opts receiver.ReadOptions, mode receiver.AckMode) ([]receiver.Message, error) {
	if c.Group == "" {
		return nil, errors.New("eventlog: consumer group must not be empty")
	}
	if err := validateStream(stream); err != nil {
		return nil, err
	}

	var after uint64
	if cur == receiver.LastConsumed {
		after = l.cursor(keyGroupDelivered(stream, c.Group))
	} else {
		var err error
		after, err = l.resolve(stream, cur)
		if err != nil {
			return nil, err
		}
	}

	msgs, err := l.fetch(ctx, stream, after, opts)
	if err != nil || len(msgs) == 0 {
		return msgs, err
	}

	last, err := parseSeq(msgs[len(msgs)-1].ID)
	if err != nil {
		return nil, err
	}
	st := l.stream(stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := l.commitCursor(keyGroupDelivered(stream, c.Group), last); err != nil {
		return nil, err
	}
	if mode == receiver.AckAuto {
		if err := l.commitCursor(keyGroupAcked(stream, c.Group), last); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Ack acknowledges delivered records for a consumer group. The acked position
// advances to the highest ID given; lower IDs are no-ops.
func (l *Log) Ack(ctx context.Context, c receiver.Consumer, stream string, ids ...string) error {
	if c.Group == "" {
		return errors.New("eventlog: consumer group must not be empty")
	}
	if err := validateStream(stream); err != nil {
		return err
	}
	var high uint64
	for _, id := range ids {
		seq, err := parseSeq(id)
		if err != nil {
			return err
		}
		if seq > high {
			high = seq
		}
	}
	if high == 0 {
		return nil
	}
	st := l.stream(stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	return l.commitCursor(keyGroupAcked(stream, c.Group), high)
}

// AckedID returns the group's acknowledged position as an ID, "0" when none.
func (l *Log) AckedID(stream, group string) string {
	return strconv.FormatUint(l.cursor(keyGroupAcked(stream, group)), 10)
}

// DeliveredID returns the group's delivered position as an ID, "0" when none.
func (l *Log) DeliveredID(stream, group string) string {
	return strconv.FormatUint(l.cursor(keyGroupDelivered(stream, group)), 10)
}

// resolve maps a cursor to the seq to read strictly after.
func (l *Log) resolve(stream string, cur receiver.Cursor) (uint64, error) {
	switch cur {
	case receiver.Latest:
		st := l.stream(stream)
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.lastSeq, nil
	case receiver.LastConsumed:
		return 0, errors.New("eventlog: cursor requires a consumer group")
	default:
		return parseSeq(string(cur))
	}
}

// fetch scans records after seq, waiting up to opts.Block for the first one.
func (l *Log) fetch(ctx context.Context, stream string, after uint64, opts receiver.ReadOptions) ([]receiver.Message, error) {
	limit := opts.BatchSize
	if limit <= 0 {
		limit = 100
	}
	deadline := time.Now().Add(opts.Block)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := l.scan(stream, after, limit)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		remaining := time.Until(deadline)
		if opts.Block <= 0 || remaining <= 0 {
			return nil, nil
		}
		if !l.waitForAppend(ctx, stream, remaining) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}
}

func (l *Log) scan(stream string, after uint64, limit int) ([]receiver.Message, error) {
	low := keyEntry(stream, after+1)
	hi := keyEntry(stream, ^uint64(0))
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var msgs []receiver.Message
	for ok := iter.First(); ok && len(msgs) < limit; ok = iter.Next() {
		seq := entrySeq(iter.Key())
		payload, headers, valid := decodeRecord(iter.Value())
		if !valid {
			return nil, errors.New("eventlog: corrupt record at seq " + strconv.FormatUint(seq, 10))
		}
		msgs = append(msgs, receiver.Message{
			ID:      strconv.FormatUint(seq, 10),
			Stream:  stream,
			Payload: payload,
			Headers: headers,
		})
	}
	return msgs, iter.Error()
}

// cursor loads a stored group position, 0 when absent.
func (l *Log) cursor(key []byte) uint64 {
	val, err := l.db.Get(key)
	if err != nil || len(val) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(val[:8])
}

// commitCursor stores seq at key unless a higher position is already stored.
// Caller holds the stream lock.
func (l *Log) commitCursor(key []byte, seq uint64) error {
	if cur, err := l.db.Get(key); err == nil && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	} else if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.db.Set(key, b[:])
}
