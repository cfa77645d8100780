// Package redisstream adapts Redis Streams to the receiver source contract.
// Cursors are Redis stream IDs; the Latest and LastConsumed sentinels map
// directly to "$" and ">". Auto-ack group reads use NOACK, manual-ack reads
// leave entries pending until XACK.
package redisstream
