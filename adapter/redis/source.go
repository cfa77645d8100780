package redisstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/flume/receiver"
	logpkg "github.com/rzbill/flume/pkg/log"
)

// payloadField is the stream entry field carrying the message body. All
// other fields become headers.
const payloadField = "payload"

var (
	_ receiver.Source = (*Source)(nil)
	_ receiver.Acker  = (*Source)(nil)
)

// Source reads Redis Streams as a receiver source. Cursors map directly to
// Redis stream IDs; the Latest and LastConsumed sentinels are Redis's own
// "$" and ">".
type Source struct {
	client redis.UniversalClient
	logger logpkg.Logger
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient, logger logpkg.Logger) (*Source, error) {
	if client == nil {
		return nil, errors.New("redisstream: client must not be nil")
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Source{client: client, logger: logger.With(logpkg.Component("redisstream"))}, nil
}

// Read fetches up to opts.BatchSize entries strictly after cur via XREAD.
// opts.Block maps to BLOCK; zero keeps the call non-blocking.
func (s *Source) Read(ctx context.Context, stream string, cur receiver.Cursor, opts receiver.ReadOptions) ([]receiver.Message, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, string(cur)},
		Count:   int64(opts.BatchSize),
		Block:   opts.Block,
	}
	if opts.Block <= 0 {
		// go-redis sends BLOCK for any non-negative value; -1 omits it.
		args.Block = -1
	}
	res, err := s.client.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisstream: xread %s: %w", stream, err)
	}
	return flatten(res), nil
}

// ReadGroup fetches via XREADGROUP. AckAuto reads NOACK so entries never
// enter the pending list; AckManual leaves them pending until Ack.
func (s *Source) ReadGroup(ctx context.Context, c receiver.Consumer, stream string, cur receiver.Cursor, opts receiver.ReadOptions, mode receiver.AckMode) ([]receiver.Message, error) {
	if c.Group == "" || c.Name == "" {
		return nil, errors.New("redisstream: consumer group and name must not be empty")
	}
	args := &redis.XReadGroupArgs{
		Group:    c.Group,
		Consumer: c.Name,
		Streams:  []string{stream, string(cur)},
		Count:    int64(opts.BatchSize),
		Block:    opts.Block,
		NoAck:    mode == receiver.AckAuto,
	}
	if opts.Block <= 0 {
		args.Block = -1
	}
	res, err := s.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisstream: xreadgroup %s/%s: %w", stream, c.Group, err)
	}
	return flatten(res), nil
}

// Ack acknowledges delivered entries via XACK.
func (s *Source) Ack(ctx context.Context, c receiver.Consumer, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, stream, c.Group, ids...).Err(); err != nil {
		return fmt.Errorf("redisstream: xack %s/%s: %w", stream, c.Group, err)
	}
	return nil
}

// EnsureGroup creates a consumer group at start, creating the stream if
// needed. An already existing group is not an error.
func (s *Source) EnsureGroup(ctx context.Context, stream, group string, start receiver.Cursor) error {
	from := string(start)
	if from == "" {
		from = "0"
	}
	err := s.client.XGroupCreateMkStream(ctx, stream, group, from).Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("redisstream: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

// Publish appends one entry via XADD and returns its ID.
func (s *Source) Publish(ctx context.Context, stream string, payload []byte, headers map[string]string) (string, error) {
	values := make(map[string]any, len(headers)+1)
	values[payloadField] = payload
	for k, v := range headers {
		if k == payloadField {
			continue
		}
		values[k] = v
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("redisstream: xadd %s: %w", stream, err)
	}
	s.logger.Debug("publish", logpkg.Str("stream", stream), logpkg.Str("id", id))
	return id, nil
}

func flatten(res []redis.XStream) []receiver.Message {
	var msgs []receiver.Message
	for _, xs := range res {
		for _, xm := range xs.Messages {
			msgs = append(msgs, toMessage(xs.Stream, xm))
		}
	}
	return msgs
}

func toMessage(stream string, xm redis.XMessage) receiver.Message {
	m := receiver.Message{ID: xm.ID, Stream: stream}
	for k, v := range xm.Values {
		s := fmt.Sprint(v)
		if k == payloadField {
			m.Payload = []byte(s)
			continue
		}
		if m.Headers == nil {
			m.Headers = make(map[string]string)
		}
		m.Headers[k] = s
	}
	return m
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
