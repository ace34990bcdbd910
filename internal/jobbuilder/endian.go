package jobbuilder

import "encoding/hex"

// swapEndianWords hex-decodes hexStr in place, 4-byte word by 4-byte word,
// byte-swapping each word internally while leaving word order unchanged —
// the transform the original firmware applies to a hex hash string before
// using it inside a header.
func swapEndianWords(hexStr string) ([]byte, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	for i := 0; i+4 <= len(raw); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = raw[i+3], raw[i+2], raw[i+1], raw[i]
	}
	return out, nil
}

// reverseBytes reverses buf in place and returns it.
func reverseBytes(buf []byte) []byte {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// reverseWords reverses the order of buf's 4-byte words while leaving each
// word's own byte order untouched — the transform construct_bm_job applies
// to a field's little-endian form to get the big-endian form the chip
// expects on the wire (reverse_bytes composed with the LE form already
// having each word byte-swapped once cancels the intra-word flip, leaving
// only the word order reversed). buf's length must be a multiple of 4.
func reverseWords(buf []byte) []byte {
	out := make([]byte, len(buf))
	words := len(buf) / 4
	for i := 0; i < words; i++ {
		src := i * 4
		dst := (words - 1 - i) * 4
		copy(out[dst:dst+4], buf[src:src+4])
	}
	return out
}
