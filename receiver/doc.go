// Package receiver bridges batched, pull-based ordered-log sources to
// push-based consumers that advertise demand incrementally.
//
// A source (Redis Streams, the local pebble event log, a Postgres table)
// can only be queried in discrete batches at a cursor position. Downstream
// consumers request messages one unit at a time, or unbounded. The receiver
// arbitrates between the two: it issues at most one fetch per subscription
// at a time, buffers fetched-but-unrequested messages in arrival order, and
// drains that buffer as demand arrives.
//
//	recv, _ := receiver.New(src, receiver.Options{BatchSize: 128})
//	sub, _ := recv.Receive(ctx, receiver.StreamOffset{Stream: "orders", Offset: receiver.Latest}, downstream)
//	sub.Request(10)
//	// ...
//	sub.Cancel()
//
// Guarantees: no more messages are emitted than requested; messages reach
// the downstream in source arrival order; after Cancel or a fetch error
// nothing further is delivered. Fetch errors are terminal; recovery is the
// caller's responsibility, by subscribing again at a fresh cursor.
package receiver
