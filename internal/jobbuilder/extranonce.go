package jobbuilder

import "encoding/binary"

// GenerateExtraNonce2 renders counter as a big-endian hex-ready byte slice
// of exactly length bytes, right-aligned and zero-padded on the left —
// the client-generated half of the coinbase's nonce space.
func GenerateExtraNonce2(counter uint32, length int) []byte {
	full := make([]byte, 4)
	binary.BigEndian.PutUint32(full, counter)

	out := make([]byte, length)
	if length <= 4 {
		copy(out, full[4-length:])
		return out
	}
	copy(out[length-4:], full)
	return out
}
