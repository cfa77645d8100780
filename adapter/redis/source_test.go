package redisstream

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flume/receiver"
)

func newTestSource(t testing.TB) (*Source, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	src, err := New(client, nil)
	require.NoError(t, err)
	return src, s
}

func TestPublishAndRead(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	id1, err := src.Publish(ctx, "orders", []byte(`{"n":1}`), map[string]string{"tenant": "acme"})
	require.NoError(t, err)
	id2, err := src.Publish(ctx, "orders", []byte(`{"n":2}`), nil)
	require.NoError(t, err)

	msgs, err := src.Read(ctx, "orders", "0", receiver.ReadOptions{BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, id1, msgs[0].ID)
	assert.Equal(t, "orders", msgs[0].Stream)
	assert.Equal(t, `{"n":1}`, string(msgs[0].Payload))
	assert.Equal(t, "acme", msgs[0].Headers["tenant"])
	assert.Equal(t, id2, msgs[1].ID)
	assert.Nil(t, msgs[1].Headers)
}

func TestReadIsExclusive(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	id1, err := src.Publish(ctx, "s", []byte("a"), nil)
	require.NoError(t, err)
	id2, err := src.Publish(ctx, "s", []byte("b"), nil)
	require.NoError(t, err)

	msgs, err := src.Read(ctx, "s", receiver.Cursor(id1), receiver.ReadOptions{BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id2, msgs[0].ID)
}

func TestReadMissingStreamIsEmpty(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	msgs, err := src.Read(ctx, "nope", "0", receiver.ReadOptions{BatchSize: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReadHonorsBatchSize(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	for i := 0; i < 5; i++ {
		_, err := src.Publish(ctx, "s", []byte("p"), nil)
		require.NoError(t, err)
	}
	msgs, err := src.Read(ctx, "s", "0", receiver.ReadOptions{BatchSize: 3})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestGroupReadManualAck(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)
	c := receiver.Consumer{Group: "g", Name: "c1"}

	require.NoError(t, src.EnsureGroup(ctx, "s", "g", "0"))
	id, err := src.Publish(ctx, "s", []byte("a"), nil)
	require.NoError(t, err)

	msgs, err := src.ReadGroup(ctx, c, "s", receiver.LastConsumed, receiver.ReadOptions{BatchSize: 10}, receiver.AckManual)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	// Unacked: a fresh consumer re-reading its pending entries sees it.
	pending, err := src.ReadGroup(ctx, c, "s", "0", receiver.ReadOptions{BatchSize: 10}, receiver.AckManual)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, src.Ack(ctx, c, "s", id))
	pending, err = src.ReadGroup(ctx, c, "s", "0", receiver.ReadOptions{BatchSize: 10}, receiver.AckManual)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGroupReadAutoAckLeavesNothingPending(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)
	c := receiver.Consumer{Group: "g", Name: "c1"}

	require.NoError(t, src.EnsureGroup(ctx, "s", "g", "0"))
	_, err := src.Publish(ctx, "s", []byte("a"), nil)
	require.NoError(t, err)

	msgs, err := src.ReadGroup(ctx, c, "s", receiver.LastConsumed, receiver.ReadOptions{BatchSize: 10}, receiver.AckAuto)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	pending, err := src.ReadGroup(ctx, c, "s", "0", receiver.ReadOptions{BatchSize: 10}, receiver.AckManual)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEnsureGroupIdempotent(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	require.NoError(t, src.EnsureGroup(ctx, "s", "g", "0"))
	require.NoError(t, src.EnsureGroup(ctx, "s", "g", "0"))
}

func TestReceiverOverRedis(t *testing.T) {
	ctx := t.Context()
	src, _ := newTestSource(t)

	ids := make([]string, 4)
	for i := range ids {
		id, err := src.Publish(ctx, "s", []byte("p"), nil)
		require.NoError(t, err)
		ids[i] = id
	}

	r, err := receiver.New(src, receiver.Options{BatchSize: 2})
	require.NoError(t, err)
	got := make(chan receiver.Message, 8)
	sub, err := r.Receive(ctx, receiver.FromStart("s"), chanSubscriber{msgs: got})
	require.NoError(t, err)
	defer sub.Cancel()

	sub.Request(4)
	for i := 0; i < 4; i++ {
		select {
		case m := <-got:
			assert.Equal(t, ids[i], m.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out at message %d", i)
		}
	}
}

type chanSubscriber struct{ msgs chan receiver.Message }

func (s chanSubscriber) OnMessage(m receiver.Message) { s.msgs <- m }
func (s chanSubscriber) OnError(err error)            {}
