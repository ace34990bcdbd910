package asic

import (
	"context"
	"io"
	"time"

	"github.com/bardlex/bitaxefw/internal/wire"
	"github.com/bardlex/bitaxefw/pkg/log"
)

// TimeoutThreshold is the number of consecutive result-read timeouts that
// trigger an operator-visible AsicNotResponding log. The original C resets
// its counter inside the same call it increments, making the threshold
// unreachable; here the counter is driver-scoped state (see DESIGN.md) so
// it is actually reachable.
const TimeoutThreshold = 2

// resultTimeout is the per-read soft timeout on the serial link.
const resultTimeout = 10 * time.Second

// enumerationQuiet is the per-frame quiet window used while counting chips
// during chain enumeration.
const enumerationQuiet = 1 * time.Second

// Job is the ASIC-ready job record (AsicJob in the data model): a
// block-header-derived payload with up to four precomputed midstates, ready
// to be framed and sent to a single chip.
type Job struct {
	LocalJobID    byte
	StartingNonce uint32
	NBits         uint32
	NTime         uint32
	Version       uint32
	MerkleRootBE  [32]byte
	PrevHashBE    [32]byte
	NumMidstates  int
	Midstate      [4][32]byte
}

// Result is what a decoded ResultFrame resolves to once correlated against
// the registry: a candidate nonce plus the rolled version it was found
// under, ready for Job Builder validation. Context is the registry entry
// the result resolved against, carried along so the caller can run
// test_nonce without a second registry lookup.
type Result struct {
	JobID         byte
	SmallCore     byte
	CoreID        byte
	Nonce         uint32
	RolledVersion uint32
	Context       JobContext
}

// Driver talks to a chain of ASIC chips over port, a UART modeled as a
// plain io.ReadWriter so it can be exercised in tests against an in-memory
// fake without real hardware.
type Driver struct {
	Variant  Variant
	Registry *Registry
	port     io.ReadWriter
	logger   *log.Logger

	chainLength       int
	currentFrequency  float64
	timeoutCounter    int
	difficultyMaskVal int
}

// New creates a driver for the given chip variant, communicating over port.
func New(variant Variant, port io.ReadWriter, logger *log.Logger) *Driver {
	return &Driver{
		Variant:          variant,
		Registry:         NewRegistry(),
		port:             port,
		logger:           logger.WithComponent("asic"),
		currentFrequency: 56.25, // the chip's own post-reset default
	}
}

// Init performs chain bring-up: version-mask redundancy writes,
// enumeration, address assignment, the difficulty mask and its surrounding
// diagnostic-group broadcast writes, per-chip configuration, and the
// frequency ramp to targetMHz. It returns the observed chain length,
// logging actual vs. expected per §4.2 step 2.
func (d *Driver) Init(ctx context.Context, versionMask uint32, expectedChips int, targetMHz float64) (int, error) {
	for i := 0; i < 3; i++ {
		d.broadcastVersionMask(versionMask)
	}

	n, err := d.enumerate(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("chain enumerated", "observed", n, "expected", expectedChips)
	d.chainLength = n

	d.write(wire.GroupAll, 0x00, d.Variant.miscInit1[:5])
	d.write(wire.GroupAll, 0x00, d.Variant.miscInit2[:5])
	d.broadcastInactive()

	interval := byte(256 / n)
	for i := 0; i < n; i++ {
		d.setChipAddress(byte(i) * interval)
	}

	for _, diag := range d.Variant.diagBeforeMask {
		d.write(wire.GroupAll, 0x00, diag[:5])
	}

	if err := d.SetDifficultyMask(d.Variant.DefaultDifficulty); err != nil {
		return n, err
	}

	for _, diag := range d.Variant.diagAfterMask {
		d.write(wire.GroupAll, 0x00, diag[:5])
	}
	d.write(wire.GroupSingle, 0x00, d.Variant.diagSingle[:5])

	for i := 0; i < n; i++ {
		addr := byte(i) * interval
		for _, init := range d.Variant.perChipInit {
			d.write(wire.GroupSingle, addr, append([]byte{init.register}, init.value[:]...))
		}
	}

	if err := d.RampFrequency(targetMHz); err != nil {
		return n, err
	}

	d.write(wire.GroupAll, 0x00, append([]byte{0x10}, d.Variant.hashCountingRange[:]...))
	d.broadcastVersionMask(versionMask)
	return n, nil
}

func (d *Driver) broadcastVersionMask(mask uint32) {
	versionsToRoll := mask >> 13
	payload := []byte{0x00, 0xA4, 0x90, 0x00, byte(versionsToRoll >> 8), byte(versionsToRoll)}
	d.send(wire.EncodeCmd(wire.GroupAll, wire.CmdWrite, payload))
}

func (d *Driver) broadcastInactive() {
	d.send(wire.EncodeCmd(wire.GroupAll, wire.CmdInactive, []byte{0x00, 0x00}))
}

func (d *Driver) setChipAddress(addr byte) {
	d.send(wire.EncodeCmd(wire.GroupSingle, wire.CmdSetAddress, []byte{addr, 0x00}))
}

func (d *Driver) write(group byte, addr byte, regAndValue []byte) {
	d.send(wire.EncodeCmd(group, wire.CmdWrite, append([]byte{addr}, regAndValue...)))
}

func (d *Driver) send(frame []byte) {
	_, _ = d.port.Write(frame)
}

// enumerate broadcasts the fixed enumeration probe and counts responses
// arriving within a 1s per-frame quiet timeout.
func (d *Driver) enumerate(ctx context.Context) (int, error) {
	d.send(wire.EncodeCmd(wire.GroupAll, wire.CmdRead, []byte{0x00, 0x00}))

	count := 0
	for {
		buf := make([]byte, wire.ResultFrameSize)
		n, err := d.readWithTimeout(ctx, buf, enumerationQuiet)
		if err != nil || n == 0 {
			break
		}
		count++
	}
	return count, nil
}

// readWithTimeout reads exactly len(buf) bytes from the port or returns 0
// once timeout elapses without a complete read. Kept simple and blocking:
// the fake transport used in tests returns immediately.
func (d *Driver) readWithTimeout(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := io.ReadFull(d.port, buf)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-time.After(timeout):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RampFrequency steps the chip chain from its current setpoint to targetMHz
// in 6.25 MHz increments with a 100ms settle between steps.
func (d *Driver) RampFrequency(targetMHz float64) error {
	for _, step := range frequencyRampSteps(d.currentFrequency, targetMHz) {
		payload, actual := hashFrequencyPayload(step)
		d.send(wire.EncodeCmd(wire.GroupAll, wire.CmdWrite, payload[:]))
		d.currentFrequency = actual
		time.Sleep(100 * time.Millisecond)
	}
	d.currentFrequency = targetMHz
	return nil
}

// SetDifficultyMask converts difficulty to the largest power-of-two-minus-1
// mask and writes it, bit-reversed per byte, to the ticket-mask register.
// The on-wire payload is exactly 6 bytes (open question resolved: honor the
// wire form, not the 9-byte buffer literal the original C declares).
func (d *Driver) SetDifficultyMask(difficulty int) error {
	d.difficultyMaskVal = largestPowerOfTwo(difficulty) - 1
	payload := [6]byte{0x00, 0x14, 0x00, 0x00, 0x00, 0x00}
	for i := 0; i < 4; i++ {
		b := byte(d.difficultyMaskVal >> (8 * i))
		payload[5-i] = reverseBits(b)
	}
	d.send(wire.EncodeCmd(wire.GroupAll, wire.CmdWrite, payload[:]))
	return nil
}

func largestPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func reverseBits(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

// SendWork assigns the next local_job_id, installs ctx in the registry, and
// transmits the JOB frame. It returns the id assigned so the orchestrator
// can correlate the eventual result.
func (d *Driver) SendWork(job *Job, ctx JobContext) byte {
	id := d.Registry.NextID()
	job.LocalJobID = id
	d.Registry.Install(id, ctx)

	payload := encodeJobPayload(job)
	d.send(wire.EncodeJob(wire.GroupSingle, wire.CmdWrite, payload))
	return id
}

// encodeJobPayload lays out the JOB packet body: address, job id, midstate
// count, starting nonce, nbits, ntime, merkle root and prev hash (BE), and
// every configured midstate.
func encodeJobPayload(job *Job) []byte {
	buf := make([]byte, 0, 1+1+1+4+4+4+32+32+32*job.NumMidstates)
	buf = append(buf, 0x00, job.LocalJobID, byte(job.NumMidstates))
	buf = appendU32LE(buf, job.StartingNonce)
	buf = appendU32LE(buf, job.NBits)
	buf = appendU32LE(buf, job.NTime)
	buf = append(buf, job.MerkleRootBE[:]...)
	buf = append(buf, job.PrevHashBE[:]...)
	for i := 0; i < job.NumMidstates; i++ {
		buf = append(buf, job.Midstate[i][:]...)
	}
	return buf
}

func appendU32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// ReceiveWork reads exactly one 11-byte result frame with a 10s soft
// timeout, validates it, and resolves it against the registry. It returns
// (nil, nil) on a timeout or a discarded frame (invalid slot, bad CRC) —
// those are not escalated to the caller as errors, matching §4.2's failure
// semantics; TimeoutThreshold consecutive timeouts are logged loudly.
func (d *Driver) ReceiveWork(ctx context.Context) (*Result, error) {
	buf := make([]byte, wire.ResultFrameSize)
	n, err := d.readWithTimeout(ctx, buf, resultTimeout)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		d.timeoutCounter++
		if d.timeoutCounter >= TimeoutThreshold {
			d.logger.Error("ASIC not sending data", "consecutive_timeouts", d.timeoutCounter)
		}
		return nil, nil
	}
	d.timeoutCounter = 0

	frame, err := wire.DecodeResult(buf)
	if err != nil {
		d.logger.Warn("discarding malformed result frame", "error", err)
		return nil, nil
	}

	jobIDHi := frame.JobID & 0xF8
	smallCore := frame.JobID & 0x07
	coreID := byte((reverseU32(frame.Nonce) >> 25) & 0x7F)
	versionBits := uint32(reverseU16(frame.Version)) << 13

	jobCtx, ok := d.Registry.Lookup(jobIDHi)
	if !ok {
		return nil, nil
	}

	return &Result{
		JobID:         jobIDHi,
		SmallCore:     smallCore,
		CoreID:        coreID,
		Nonce:         frame.Nonce,
		RolledVersion: jobCtx.Version | versionBits,
		Context:       jobCtx,
	}, nil
}

func reverseU16(v uint16) uint16 {
	return v>>8 | v<<8
}

func reverseU32(v uint32) uint32 {
	return v>>24&0xFF | v<<8&0xFF0000 | v>>8&0xFF00 | v<<24&0xFF000000
}

// DefaultBaud returns the initial UART baud rate the chip's API contract
// reports: 115,749bps. A strict recomputation from the divider the chip
// actually programs (25_000_000 / ((26+1)*8)) yields 115,740 — the
// discrepancy is the original firmware's own, reported here unchanged
// rather than silently "corrected".
func (d *Driver) DefaultBaud() int {
	return 115_749
}

// MaxBaud is the baud rate the chain runs at after max-baud reprogramming.
func (d *Driver) MaxBaud() int {
	return 1_000_000
}

// ChainLength reports the chip count observed during the last Init.
func (d *Driver) ChainLength() int {
	return d.chainLength
}

// ConsecutiveTimeouts reports how many consecutive ReceiveWork calls have
// timed out without a frame, so a caller can raise an AsicNotResponding
// event exactly once when the threshold is first crossed.
func (d *Driver) ConsecutiveTimeouts() int {
	return d.timeoutCounter
}
