// Package eventlog is a local, Pebble-backed ordered log usable as a
// receiver source. Streams are independent append-only sequences; record IDs
// are decimal sequence numbers assigned from 1. Consumer groups track a
// delivered and an acknowledged position per stream.
package eventlog
