package jobbuilder

import (
	"encoding/hex"
	"fmt"
	"math/rand"

	"github.com/remeh/sizedwaitgroup"

	"github.com/bardlex/bitaxefw/internal/asic"
	"github.com/bardlex/bitaxefw/internal/stratum"
)

// maxConcurrentMidstates bounds how many of a job's up-to-four rolled-version
// midstates are hashed concurrently. The three extra midstates are
// independent SHA-256 compressions once the rolled version words are known,
// so computing them in parallel is free concurrency, but it must stay
// bounded or bursty job construction could pile up goroutines against the
// job queue.
const maxConcurrentMidstates = 4

// SessionParams is the subset of the active Stratum session a job build
// needs: the server-assigned extranonce1 and its required extranonce2
// width, the granted version-rolling mask, and the current share difficulty.
type SessionParams struct {
	ExtraNonce1     string
	ExtraNonce2Size int
	VersionMask     uint32
	Difficulty      float64
}

// Build turns one mining.notify push into an ASIC-ready Job plus the
// registry context needed to resolve a later result frame back to a
// pool-submittable share. extraNonce2Counter is the caller's monotonic
// counter for generating a fresh extranonce2 per job. subrangeSize, when
// nonzero, selects a random starting_nonce aligned to that subrange width
// instead of always starting at zero, so successive jobs spread chip search
// space across the 32-bit nonce range rather than overlapping it; zero
// keeps the simple always-0 policy.
func Build(n stratum.MiningNotification, session SessionParams, extraNonce2Counter uint32, epoch uint64, subrangeSize uint32) (*asic.Job, asic.JobContext, error) {
	extraNonce1, err := hex.DecodeString(session.ExtraNonce1)
	if err != nil {
		return nil, asic.JobContext{}, fmt.Errorf("decode extranonce1: %w", err)
	}
	extraNonce2 := GenerateExtraNonce2(extraNonce2Counter, session.ExtraNonce2Size)

	coinbase := BuildCoinbase(n.Coinbase1, extraNonce1, extraNonce2, n.Coinbase2)
	merkleRootLE := MerkleRoot(coinbase, n.MerkleBranch)

	prevHashLE, err := swapEndianWords(n.PrevHashHex)
	if err != nil {
		return nil, asic.JobContext{}, fmt.Errorf("decode prevhash: %w", err)
	}
	if len(prevHashLE) != 32 {
		return nil, asic.JobContext{}, fmt.Errorf("prevhash must decode to 32 bytes, got %d", len(prevHashLE))
	}
	var prevHashLEArr [32]byte
	copy(prevHashLEArr[:], prevHashLE)

	merkleRootBE := reverseWords(append([]byte{}, merkleRootLE[:]...))
	prevHashBE := reverseWords(append([]byte{}, prevHashLE...))

	job := &asic.Job{
		StartingNonce: startingNonce(subrangeSize),
		NBits:         n.NBits,
		NTime:         n.NTime,
		Version:       n.Version,
	}
	copy(job.MerkleRootBE[:], merkleRootBE)
	copy(job.PrevHashBE[:], prevHashBE)

	midstateBlock := make([]byte, 64)
	putU32LE(midstateBlock[0:4], n.Version)
	copy(midstateBlock[4:36], prevHashLEArr[:])
	copy(midstateBlock[36:64], merkleRootLE[:28])
	job.Midstate[0] = Midstate(midstateBlock)
	reverseBytes(job.Midstate[0][:])
	job.NumMidstates = 1

	if session.VersionMask != 0 {
		// The rolled version words themselves are a serial bit-carry chain
		// (IncrementBitmask depends on the prior value), so those are
		// computed up front; only the per-midstate SHA-256 compression is
		// fanned out.
		rolledVersions := make([]uint32, 4)
		rolledVersions[0] = n.Version
		for i := 1; i < 4; i++ {
			rolledVersions[i] = IncrementBitmask(rolledVersions[i-1], session.VersionMask)
		}

		swg := sizedwaitgroup.New(maxConcurrentMidstates)
		for i := 1; i < 4; i++ {
			swg.Add()
			go func(i int, version uint32) {
				defer swg.Done()
				block := make([]byte, 64)
				putU32LE(block[0:4], version)
				copy(block[4:36], prevHashLEArr[:])
				copy(block[36:64], merkleRootLE[:28])
				job.Midstate[i] = Midstate(block)
				reverseBytes(job.Midstate[i][:])
			}(i, rolledVersions[i])
		}
		swg.Wait()
		job.NumMidstates = 4
	}

	ctx := asic.JobContext{
		NotificationJobID: n.JobID,
		ExtraNonce2:       extraNonce2,
		Version:           n.Version,
		PoolDifficulty:    session.Difficulty,
		Epoch:             epoch,
		MerkleRootLE:      merkleRootLE,
		PrevHashLE:        prevHashLEArr,
		NTime:             n.NTime,
		NBits:             n.NBits,
	}
	return job, ctx, nil
}

// startingNonce picks a subrange origin for a fresh job: a multiple of
// subrangeSize drawn uniformly from however many whole subranges fit in the
// 32-bit nonce space. subrangeSize of 0 keeps the simple policy of always
// starting at nonce 0.
func startingNonce(subrangeSize uint32) uint32 {
	if subrangeSize == 0 {
		return 0
	}
	subranges := (uint64(1) << 32) / uint64(subrangeSize)
	if subranges == 0 {
		return 0
	}
	return uint32(rand.Int63n(int64(subranges))) * subrangeSize
}

func putU32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

