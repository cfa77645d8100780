package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rzbill/flume/receiver"
	logpkg "github.com/rzbill/flume/pkg/log"
)

// ErrBadCursor is returned when a cursor cannot be parsed as a row ID.
var ErrBadCursor = errors.New("postgres: malformed cursor")

// pollInterval is the re-check period for blocking reads.
const pollInterval = 50 * time.Millisecond

var (
	_ receiver.Source = (*Source)(nil)
	_ receiver.Acker  = (*Source)(nil)
)

// Source reads an append-only events table as a receiver source. Message IDs
// are decimal bigserial row IDs; a fetch is a keyset scan strictly after the
// cursor. Blocking reads re-poll until the deadline.
type Source struct {
	pool   *pgxpool.Pool
	logger logpkg.Logger
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool, logger logpkg.Logger) (*Source, error) {
	if pool == nil {
		return nil, errors.New("postgres: pool must not be nil")
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Source{pool: pool, logger: logger.With(logpkg.Component("postgres"))}, nil
}

// InitSchema creates the events and group_cursors tables if absent.
func (s *Source) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         BIGSERIAL PRIMARY KEY,
	stream     TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	headers    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS events_stream_id_idx ON events (stream, id);
CREATE TABLE IF NOT EXISTS group_cursors (
	stream         TEXT   NOT NULL,
	consumer_group TEXT   NOT NULL,
	delivered      BIGINT NOT NULL DEFAULT 0,
	acked          BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (stream, consumer_group)
);`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	return nil
}

// Publish appends one event and returns its assigned ID.
func (s *Source) Publish(ctx context.Context, stream string, payload []byte, headers map[string]string) (string, error) {
	var hdr []byte
	if len(headers) > 0 {
		var err error
		hdr, err = json.Marshal(headers)
		if err != nil {
			return "", err
		}
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (stream, payload, headers) VALUES ($1, $2, $3) RETURNING id`,
		stream, payload, hdr).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("postgres: publish %s: %w", stream, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Read fetches up to opts.BatchSize events strictly after cur. Latest
// resolves to the highest row ID at call time.
func (s *Source) Read(ctx context.Context, stream string, cur receiver.Cursor, opts receiver.ReadOptions) ([]receiver.Message, error) {
	after, err := s.resolve(ctx, stream, cur)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, stream, after, opts)
}

// ReadGroup fetches on behalf of a consumer group. LastConsumed resumes
// after the group's delivered row; deliveries advance it, and AckAuto
// acknowledges in the same statement.
func (s *Source) ReadGroup(ctx context.Context, c receiver.Consumer, stream string, cur receiver.Cursor, opts receiver.ReadOptions, mode receiver.AckMode) ([]receiver.Message, error) {
	if c.Group == "" {
		return nil, errors.New("postgres: consumer group must not be empty")
	}

	var after int64
	if cur == receiver.LastConsumed {
		var err error
		after, err = s.deliveredID(ctx, stream, c.Group)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		after, err = s.resolve(ctx, stream, cur)
		if err != nil {
			return nil, err
		}
	}

	msgs, err := s.fetch(ctx, stream, after, opts)
	if err != nil || len(msgs) == 0 {
		return msgs, err
	}

	last, err := strconv.ParseInt(msgs[len(msgs)-1].ID, 10, 64)
	if err != nil {
		return nil, ErrBadCursor
	}
	ackTo := int64(0)
	if mode == receiver.AckAuto {
		ackTo = last
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO group_cursors (stream, consumer_group, delivered, acked)
VALUES ($1, $2, $3, $4)
ON CONFLICT (stream, consumer_group) DO UPDATE SET
	delivered = GREATEST(group_cursors.delivered, EXCLUDED.delivered),
	acked     = GREATEST(group_cursors.acked, EXCLUDED.acked)`,
		stream, c.Group, last, ackTo)
	if err != nil {
		return nil, fmt.Errorf("postgres: advance cursor %s/%s: %w", stream, c.Group, err)
	}
	return msgs, nil
}

// Ack acknowledges delivered events; the acked position advances to the
// highest ID given and never regresses.
func (s *Source) Ack(ctx context.Context, c receiver.Consumer, stream string, ids ...string) error {
	if c.Group == "" {
		return errors.New("postgres: consumer group must not be empty")
	}
	var high int64
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return ErrBadCursor
		}
		if n > high {
			high = n
		}
	}
	if high == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO group_cursors (stream, consumer_group, acked)
VALUES ($1, $2, $3)
ON CONFLICT (stream, consumer_group) DO UPDATE SET
	acked = GREATEST(group_cursors.acked, EXCLUDED.acked)`,
		stream, c.Group, high)
	if err != nil {
		return fmt.Errorf("postgres: ack %s/%s: %w", stream, c.Group, err)
	}
	return nil
}

func (s *Source) resolve(ctx context.Context, stream string, cur receiver.Cursor) (int64, error) {
	switch cur {
	case receiver.Latest:
		var max int64
		err := s.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(id), 0) FROM events WHERE stream = $1`, stream).Scan(&max)
		if err != nil {
			return 0, fmt.Errorf("postgres: resolve tail of %s: %w", stream, err)
		}
		return max, nil
	case receiver.LastConsumed:
		return 0, errors.New("postgres: cursor requires a consumer group")
	case "":
		return 0, nil
	default:
		n, err := strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, ErrBadCursor
		}
		return n, nil
	}
}

func (s *Source) deliveredID(ctx context.Context, stream, group string) (int64, error) {
	var delivered int64
	err := s.pool.QueryRow(ctx, `
SELECT COALESCE(MAX(delivered), 0) FROM group_cursors
WHERE stream = $1 AND consumer_group = $2`, stream, group).Scan(&delivered)
	if err != nil {
		return 0, fmt.Errorf("postgres: load cursor %s/%s: %w", stream, group, err)
	}
	return delivered, nil
}

func (s *Source) fetch(ctx context.Context, stream string, after int64, opts receiver.ReadOptions) ([]receiver.Message, error) {
	limit := opts.BatchSize
	if limit <= 0 {
		limit = 100
	}
	deadline := time.Now().Add(opts.Block)
	for {
		msgs, err := s.scan(ctx, stream, after, limit)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		if opts.Block <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *Source) scan(ctx context.Context, stream string, after int64, limit int) ([]receiver.Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, payload, headers FROM events
WHERE stream = $1 AND id > $2
ORDER BY id ASC
LIMIT $3`, stream, after, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", stream, err)
	}
	defer rows.Close()

	var msgs []receiver.Message
	for rows.Next() {
		var id int64
		var payload []byte
		var hdr []byte
		if err := rows.Scan(&id, &payload, &hdr); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		var headers map[string]string
		if len(hdr) > 0 {
			if err := json.Unmarshal(hdr, &headers); err != nil {
				return nil, fmt.Errorf("postgres: decode headers of %d: %w", id, err)
			}
		}
		msgs = append(msgs, receiver.Message{
			ID:      strconv.FormatInt(id, 10),
			Stream:  stream,
			Payload: payload,
			Headers: headers,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan %s: %w", stream, err)
	}
	return msgs, nil
}
