package eventlog

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - s/{stream}/m                  last assigned seq (be8)
// - s/{stream}/e/{seq_be8}        entry record
// - s/{stream}/g/{group}/d        group delivered cursor (be8)
// - s/{stream}/g/{group}/a        group acked cursor (be8)

var (
	streamPrefix = []byte("s/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
	groupSeg     = []byte("/g/")
	deliveredSfx = []byte("/d")
	ackedSfx     = []byte("/a")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyMeta(stream string) []byte {
	k := make([]byte, 0, len(stream)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

func keyEntry(stream string, seq uint64) []byte {
	k := make([]byte, 0, len(stream)+16)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

func keyGroupDelivered(stream, group string) []byte {
	k := make([]byte, 0, len(stream)+len(group)+12)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, groupSeg...)
	k = append(k, group...)
	k = append(k, deliveredSfx...)
	return k
}

func keyGroupAcked(stream, group string) []byte {
	k := make([]byte, 0, len(stream)+len(group)+12)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, groupSeg...)
	k = append(k, group...)
	k = append(k, ackedSfx...)
	return k
}

// entrySeq extracts the sequence from an entry key.
func entrySeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
