package jobbuilder

import (
	"testing"

	"github.com/bardlex/bitaxefw/internal/stratum"
)

func sampleNotification() stratum.MiningNotification {
	return stratum.MiningNotification{
		JobID:        "job-1",
		PrevHashHex:  "0000000000000000000000000000000000000000000000000000000000000000"[:64],
		Coinbase1:    []byte{0x01, 0x02},
		Coinbase2:    []byte{0x03, 0x04},
		MerkleBranch: nil,
		Version:      0x20000000,
		NBits:        0x1d00ffff,
		NTime:        1700000000,
		CleanJobs:    true,
	}
}

func TestBuildZeroSubrangeAlwaysStartsAtZero(t *testing.T) {
	n := sampleNotification()
	n.PrevHashHex = "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	session := SessionParams{ExtraNonce1: "aabbccdd", ExtraNonce2Size: 4, Difficulty: 1}

	job, ctx, err := Build(n, session, 1, 7, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if job.StartingNonce != 0 {
		t.Errorf("StartingNonce = %d, want 0 for zero subrange size", job.StartingNonce)
	}
	if ctx.Epoch != 7 {
		t.Errorf("Epoch = %d, want 7", ctx.Epoch)
	}
	if ctx.NotificationJobID != "job-1" {
		t.Errorf("NotificationJobID = %q, want job-1", ctx.NotificationJobID)
	}
	if job.NumMidstates != 1 {
		t.Errorf("NumMidstates = %d, want 1 (no version mask granted)", job.NumMidstates)
	}
}

func TestBuildSubrangeAlignedStartingNonce(t *testing.T) {
	n := sampleNotification()
	n.PrevHashHex = "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	session := SessionParams{ExtraNonce1: "aabbccdd", ExtraNonce2Size: 4, Difficulty: 1, VersionMask: 0x1fffe000}

	const subrangeSize = 400_000_000
	for i := 0; i < 20; i++ {
		job, _, err := Build(n, session, uint32(i), 1, subrangeSize)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if job.StartingNonce%subrangeSize != 0 {
			t.Errorf("StartingNonce %d not aligned to subrange %d", job.StartingNonce, subrangeSize)
		}
	}
	if _, _, err := Build(n, session, 0, 1, subrangeSize); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestBuildVersionRollingProducesFourMidstates(t *testing.T) {
	n := sampleNotification()
	n.PrevHashHex = "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	session := SessionParams{ExtraNonce1: "aabbccdd", ExtraNonce2Size: 4, Difficulty: 1, VersionMask: 0x1fffe000}

	job, _, err := Build(n, session, 0, 0, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if job.NumMidstates != 4 {
		t.Errorf("NumMidstates = %d, want 4 when a version mask is granted", job.NumMidstates)
	}
}

func TestBuildRejectsBadExtraNonce1(t *testing.T) {
	n := sampleNotification()
	session := SessionParams{ExtraNonce1: "not-hex", ExtraNonce2Size: 4}
	if _, _, err := Build(n, session, 0, 0, 0); err == nil {
		t.Fatal("expected error for non-hex extranonce1")
	}
}

// TestBuildBEFieldsReverseWordOrderOnly locks in the fix for MerkleRootBE/
// PrevHashBE: the chip-facing BE forms reverse the order of the eight
// 4-byte words of the LE form, they do not byte-flip each word too.
func TestBuildBEFieldsReverseWordOrderOnly(t *testing.T) {
	n := sampleNotification()
	n.PrevHashHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"[:64]
	session := SessionParams{ExtraNonce1: "aabbccdd", ExtraNonce2Size: 4, Difficulty: 1}

	job, ctx, err := Build(n, session, 0, 0, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantPrevHashBE := [32]byte{
		0x1f, 0x1e, 0x1d, 0x1c,
		0x1b, 0x1a, 0x19, 0x18,
		0x17, 0x16, 0x15, 0x14,
		0x13, 0x12, 0x11, 0x10,
		0x0f, 0x0e, 0x0d, 0x0c,
		0x0b, 0x0a, 0x09, 0x08,
		0x07, 0x06, 0x05, 0x04,
		0x03, 0x02, 0x01, 0x00,
	}
	if job.PrevHashBE != wantPrevHashBE {
		t.Fatalf("PrevHashBE = %x, want %x", job.PrevHashBE, wantPrevHashBE)
	}

	// derive the expected MerkleRootBE independently of reverseWords itself,
	// by manually reversing ctx.MerkleRootLE's word order.
	var wantMerkleRootBE [32]byte
	for i := 0; i < 8; i++ {
		copy(wantMerkleRootBE[i*4:i*4+4], ctx.MerkleRootLE[(7-i)*4:(7-i)*4+4])
	}
	if job.MerkleRootBE != wantMerkleRootBE {
		t.Fatalf("MerkleRootBE = %x, want %x (derived from MerkleRootLE %x)", job.MerkleRootBE, wantMerkleRootBE, ctx.MerkleRootLE)
	}

	// a plain full-buffer reversal, the bug being fixed, must NOT match.
	var plainReversed [32]byte
	for i, b := range ctx.MerkleRootLE {
		plainReversed[31-i] = b
	}
	if job.MerkleRootBE == plainReversed {
		t.Fatal("MerkleRootBE matches a plain full-buffer reversal, want word-order-only reversal")
	}
}

func TestBuildRejectsBadPrevHash(t *testing.T) {
	n := sampleNotification()
	n.PrevHashHex = "deadbeef"
	session := SessionParams{ExtraNonce1: "aabbccdd", ExtraNonce2Size: 4}
	if _, _, err := Build(n, session, 0, 0, 0); err == nil {
		t.Fatal("expected error for short prevhash")
	}
}
