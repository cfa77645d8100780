package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Record encoding: varint headerLen | headerJSON | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(headers map[string]string, payload []byte) ([]byte, error) {
	var header []byte
	if len(headers) > 0 {
		var err error
		header, err = json.Marshal(headers)
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

func decodeRecord(b []byte) (payload []byte, headers map[string]string, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, nil, false
	}
	if n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header := b[n : n+int(hlen)]
	body := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != expect {
		return nil, nil, false
	}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &headers); err != nil {
			return nil, nil, false
		}
	}
	return append([]byte(nil), body...), headers, true
}
