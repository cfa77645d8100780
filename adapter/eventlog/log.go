package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	pebblestore "github.com/rzbill/flume/internal/storage/pebble"
	logpkg "github.com/rzbill/flume/pkg/log"
)

// ErrBadCursor is returned when a cursor cannot be parsed as a position.
var ErrBadCursor = errors.New("eventlog: malformed cursor")

// ErrBadStream is returned for stream names the keyspace cannot encode.
var ErrBadStream = errors.New("eventlog: stream name must be non-empty and must not contain '/'")

// validateStream rejects names that would collide in the key layout: "/" is
// the keyspace segment separator, so a stream named "x/e" would sit inside
// stream "x"'s entry range.
func validateStream(stream string) error {
	if stream == "" || strings.ContainsRune(stream, '/') {
		return ErrBadStream
	}
	return nil
}

// Options configure a Log.
type Options struct {
	// DataDir is the Pebble database directory.
	DataDir string
	// Fsync is the durability policy. Defaults to interval group-commit.
	Fsync pebblestore.FsyncMode
	// Logger defaults to a no-op logger.
	Logger logpkg.Logger
}

// Log is a local append-only ordered log backed by Pebble. Each stream is an
// independent sequence of records; message IDs are decimal sequence numbers
// starting at 1.
type Log struct {
	db     *pebblestore.DB
	logger logpkg.Logger

	mu      sync.Mutex
	streams map[string]*streamState
}

// streamState caches the last assigned seq and carries the append notifier.
// The notifier channel is closed and replaced on every append.
type streamState struct {
	mu      sync.Mutex
	lastSeq uint64
	notify  chan struct{}
}

// Open creates or opens a Log at opts.DataDir.
func Open(opts Options) (*Log, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	return &Log{
		db:      db,
		logger:  logger.With(logpkg.Component("eventlog")),
		streams: make(map[string]*streamState),
	}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

func (l *Log) stream(name string) *streamState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.streams[name]
	if !ok {
		st = &streamState{notify: make(chan struct{})}
		if meta, err := l.db.Get(keyMeta(name)); err == nil && len(meta) >= 8 {
			st.lastSeq = binary.BigEndian.Uint64(meta[:8])
		}
		l.streams[name] = st
	}
	return st
}

// Append writes one record to stream and returns its assigned ID.
func (l *Log) Append(ctx context.Context, stream string, payload []byte, headers map[string]string) (string, error) {
	if err := validateStream(stream); err != nil {
		return "", err
	}
	val, err := encodeRecord(headers, payload)
	if err != nil {
		return "", err
	}

	st := l.stream(stream)
	st.mu.Lock()
	defer st.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seq := st.lastSeq + 1
	if err := b.Set(keyEntry(stream, seq), val, nil); err != nil {
		return "", err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(keyMeta(stream), meta[:], nil); err != nil {
		return "", err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return "", err
	}

	st.lastSeq = seq
	close(st.notify)
	st.notify = make(chan struct{})

	l.logger.Debug("append", logpkg.Str("stream", stream), logpkg.Uint64("seq", seq))
	return strconv.FormatUint(seq, 10), nil
}

// LastID returns the ID of the newest record in stream, or "0" when empty.
func (l *Log) LastID(stream string) string {
	st := l.stream(stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	return strconv.FormatUint(st.lastSeq, 10)
}

// waitForAppend blocks until a record is appended to stream, timeout elapses,
// or ctx is done. It reports whether it was woken by an append.
func (l *Log) waitForAppend(ctx context.Context, stream string, timeout time.Duration) bool {
	st := l.stream(stream)
	st.mu.Lock()
	ch := st.notify
	st.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// parseSeq parses a decimal cursor. "" counts as position 0.
func parseSeq(cur string) (uint64, error) {
	if cur == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(cur, 10, 64)
	if err != nil {
		return 0, ErrBadCursor
	}
	return seq, nil
}
