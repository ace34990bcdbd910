package jobbuilder

import (
	"bytes"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	sha256simd "github.com/minio/sha256-simd"

	"github.com/bardlex/bitaxefw/internal/asic"
)

// truediffone is the Bitcoin difficulty-1 target expressed as a 256-bit
// little-endian integer's double value: 0x00000000FFFF0000...0000.
var truediffone = func() *big.Float {
	target := new(big.Int).Lsh(big.NewInt(0xFFFF), 208)
	return new(big.Float).SetInt(target)
}()

// headerBufPool reuses the 80-byte header serialization buffer across the
// hot path of testing every nonce the chain reports, the way the pool
// service's block reconstruction reuses a pooled *bytes.Buffer.
var headerBufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 80))
	},
}

// TestNonce rebuilds the 80-byte header the chip hashed for (nonce,
// rolledVersion) against the job context it was dispatched under, and
// returns the share's difficulty: truediffone divided by the header's
// double-SHA-256 interpreted as a little-endian 256-bit integer. A result
// at or above the job's pool difficulty is submittable; one at or above the
// network target (derived from NBits) is a found block.
func TestNonce(ctx asic.JobContext, nonce, rolledVersion uint32) float64 {
	prevBlock, err := chainhash.NewHash(ctx.PrevHashLE[:])
	if err != nil {
		return 0
	}
	merkleRoot, err := chainhash.NewHash(ctx.MerkleRootLE[:])
	if err != nil {
		return 0
	}

	header := &wire.BlockHeader{
		Version:    int32(rolledVersion),
		PrevBlock:  *prevBlock,
		MerkleRoot: *merkleRoot,
		Timestamp:  time.Unix(int64(ctx.NTime), 0),
		Bits:       ctx.NBits,
		Nonce:      nonce,
	}

	buf := headerBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer headerBufPool.Put(buf)

	if err := header.Serialize(buf); err != nil {
		return 0
	}

	first := sha256simd.Sum256(buf.Bytes())
	second := sha256simd.Sum256(first[:])

	// second is produced in SHA-256's natural byte order, which Bitcoin
	// treats as a little-endian 256-bit integer; big.Int wants big-endian,
	// so the bytes are reversed before loading.
	be := second
	reverseBytes(be[:])

	value := new(big.Float).SetInt(new(big.Int).SetBytes(be[:]))
	if value.Sign() == 0 {
		return 0
	}

	result := new(big.Float).Quo(truediffone, value)
	f, _ := result.Float64()
	return f
}

// NetworkDifficulty converts a block header's compact nBits field into the
// difficulty the network target represents, using the same truediffone
// reference as share difficulty so the two are directly comparable.
func NetworkDifficulty(nBits uint32) float64 {
	exponent := nBits >> 24
	mantissa := nBits & 0x00FFFFFF

	target := new(big.Int).SetUint64(uint64(mantissa))
	shift := 8 * (int(exponent) - 3)
	if shift > 0 {
		target.Lsh(target, uint(shift))
	} else if shift < 0 {
		target.Rsh(target, uint(-shift))
	}

	value := new(big.Float).SetInt(target)
	if value.Sign() == 0 {
		return 0
	}
	result := new(big.Float).Quo(truediffone, value)
	f, _ := result.Float64()
	return f
}
