package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/rzbill/flume/pkg/log"
)

// Options configure a Receiver. The zero value is usable with a Source:
// batch size defaults to 100 and fetches do not block.
type Options struct {
	// BatchSize bounds a single fetch. Defaults to 100.
	BatchSize int

	// PollTimeout is how long one fetch may wait at the source for at
	// least one message. Zero means every fetch is a single non-blocking
	// attempt; with an idle source and outstanding demand that polls in
	// a tight loop, so a non-zero value is recommended for tailing.
	PollTimeout time.Duration

	// Logger receives per-subscription debug logging. Defaults to a
	// no-op logger.
	Logger logpkg.Logger

	// Metrics, when set, counts fetches, emissions, and buffer activity.
	Metrics *Metrics
}

// Receiver builds demand-driven subscriptions on top of a batched Source.
// One Receiver serves any number of independent subscriptions.
type Receiver struct {
	src     Source
	opts    ReadOptions
	logger  logpkg.Logger
	metrics *Metrics
}

var errNilSource = errors.New("receiver: source must not be nil")

// New creates a Receiver reading through src.
func New(src Source, opts Options) (*Receiver, error) {
	if src == nil {
		return nil, errNilSource
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Receiver{
		src:     src,
		opts:    ReadOptions{BatchSize: opts.BatchSize, Block: opts.PollTimeout},
		logger:  logger.With(logpkg.Component("receiver")),
		metrics: opts.Metrics,
	}, nil
}

// SubscribeOption customizes a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	filterExpr string
}

// WithFilter attaches a CEL filter expression evaluated per message.
// Non-matching messages advance the cursor but are neither emitted nor
// counted against demand. Variables: stream, id, size, text, json, headers,
// now_ms.
func WithFilter(expr string) SubscribeOption {
	return func(c *subscribeConfig) { c.filterExpr = expr }
}

// Receive arms an anonymous subscription at off. No fetch is issued until
// the returned Subscription receives demand.
func (r *Receiver) Receive(ctx context.Context, off StreamOffset, sub Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	read := func(ctx context.Context, stream string, cur Cursor) ([]Message, error) {
		return r.src.Read(ctx, stream, cur, r.opts)
	}
	return r.arm(ctx, off, nil, read, sub, opts)
}

// ReceiveAutoAck arms a consumer-group subscription whose deliveries the
// source does not track: a fetched message counts as consumed immediately.
func (r *Receiver) ReceiveAutoAck(ctx context.Context, c Consumer, off StreamOffset, sub Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	if err := validateConsumer(c); err != nil {
		return nil, err
	}
	read := func(ctx context.Context, stream string, cur Cursor) ([]Message, error) {
		return r.src.ReadGroup(ctx, c, stream, cur, r.opts, AckAuto)
	}
	return r.arm(ctx, off, &c, read, sub, opts)
}

// ReceiveManualAck arms a consumer-group subscription with tracked
// deliveries; the caller acknowledges messages through the source's Acker.
func (r *Receiver) ReceiveManualAck(ctx context.Context, c Consumer, off StreamOffset, sub Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	if err := validateConsumer(c); err != nil {
		return nil, err
	}
	read := func(ctx context.Context, stream string, cur Cursor) ([]Message, error) {
		return r.src.ReadGroup(ctx, c, stream, cur, r.opts, AckManual)
	}
	return r.arm(ctx, off, &c, read, sub, opts)
}

func (r *Receiver) arm(ctx context.Context, off StreamOffset, c *Consumer, read ReadFunc, sub Subscriber, opts []SubscribeOption) (*Subscription, error) {
	if off.Stream == "" {
		return nil, errors.New("receiver: stream name must not be empty")
	}
	if sub == nil {
		return nil, errors.New("receiver: subscriber must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg subscribeConfig
	for _, o := range opts {
		o(&cfg)
	}
	filter, err := newCELFilter(cfg.filterExpr)
	if err != nil {
		return nil, fmt.Errorf("receiver: compile filter: %w", err)
	}

	r.logger.Debug("receive",
		logpkg.Str("stream", off.Stream),
		logpkg.Str("offset", string(off.Offset)))

	return newSubscription(ctx, off, c, read, sub, r.logger, filter, r.metrics), nil
}

func validateConsumer(c Consumer) error {
	if c.Group == "" || c.Name == "" {
		return errors.New("receiver: consumer group and name must not be empty")
	}
	return nil
}
