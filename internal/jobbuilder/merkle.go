package jobbuilder

import sha256simd "github.com/minio/sha256-simd"

// BuildCoinbase concatenates the pool's coinbase1/coinbase2 halves around
// the session's extranonce1 and the job's freshly generated extranonce2.
func BuildCoinbase(coinbase1, extraNonce1, extraNonce2, coinbase2 []byte) []byte {
	buf := make([]byte, 0, len(coinbase1)+len(extraNonce1)+len(extraNonce2)+len(coinbase2))
	buf = append(buf, coinbase1...)
	buf = append(buf, extraNonce1...)
	buf = append(buf, extraNonce2...)
	buf = append(buf, coinbase2...)
	return buf
}

// doubleSHA256 runs SHA-256 twice, using the AVX2/SHA-NI accelerated
// implementation rather than crypto/sha256 since this runs once per job on
// every coinbase and Merkle fold, not just once per share.
func doubleSHA256(data []byte) [32]byte {
	first := sha256simd.Sum256(data)
	return sha256simd.Sum256(first[:])
}

// MerkleRoot double-SHA-256-hashes the coinbase transaction, then folds in
// each Merkle branch the pool supplied, producing the root that goes into
// the block header. No other transactions are fetched or assembled here —
// the pool is the only source of the branch hashes.
func MerkleRoot(coinbaseTx []byte, branches [][]byte) [32]byte {
	root := doubleSHA256(coinbaseTx)

	var both [64]byte
	for _, branch := range branches {
		copy(both[:32], root[:])
		copy(both[32:], branch)
		root = doubleSHA256(both[:])
	}

	return root
}
