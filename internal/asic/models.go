// Package asic drives a daisy-chained array of BM13xx SHA-256 ASIC chips:
// chain bring-up, frequency programming, job dispatch and result decoding.
package asic

// Model tags one of the chip families this driver supports. Differences
// between families are captured entirely as data on Variant rather than as
// a function-pointer table, per the capability-set redesign.
type Model int

const (
	BM1366 Model = iota
	BM1368
	BM1370
	BM1397
)

func (m Model) String() string {
	switch m {
	case BM1366:
		return "BM1366"
	case BM1368:
		return "BM1368"
	case BM1370:
		return "BM1370"
	case BM1397:
		return "BM1397"
	default:
		return "unknown"
	}
}

// ParseModel maps the settings store's asic_model string to a Model,
// defaulting to BM1366 (the settings store's own documented default) for
// an empty or unrecognized value rather than erroring.
func ParseModel(s string) Model {
	switch s {
	case "BM1368":
		return BM1368
	case "BM1370":
		return BM1370
	case "BM1397":
		return BM1397
	default:
		return BM1366
	}
}

// chipInit is one of the per-chip register-write commands issued during
// bring-up (step 6 of chain bring-up), addressed to a specific chip by the
// caller prepending the chip's address byte.
type chipInit struct {
	register byte
	value    [4]byte
}

// Variant carries every model-specific constant the driver needs: core
// count, default ASIC-side difficulty, job cadence, and the exact register
// literals the chip's documented bring-up sequence writes.
//
// Only BM1366's literals are verified against original firmware source
// (components/asic/bm1366.c); BM1368/BM1370/BM1397 share the same bring-up
// shape — it is common across the bitaxe ASIC family — with model-specific
// register literals synthesized analogously, not independently verified.
type Variant struct {
	Model Model

	CoreCount         int
	DefaultDifficulty int
	JobFrequencyMS    int

	// miscInit1/2 are the two broadcast WRITE frames sent after the chain
	// enumeration probe, before the chain is addressed.
	//
	// Each six-byte init entry below holds the register, its four value
	// bytes, and the CRC5 trailer of the original firmware's frame; Init
	// sends only the first five bytes and the codec computes its own CRC.
	miscInit1 [6]byte
	miscInit2 [6]byte

	// diagBeforeMask are the two broadcast WRITEs (register 0x3C) sent right
	// after address assignment, before the difficulty mask, as part of
	// bring-up step 5's diagnostic group.
	diagBeforeMask [2][6]byte

	// diagAfterMask are the two GROUP_ALL broadcast WRITEs (registers 0x54,
	// 0x58) sent immediately after the difficulty mask, completing the rest
	// of the step 5 diagnostic group.
	diagAfterMask [2][6]byte

	// diagSingle is the diagnostic group's one GROUP_SINGLE WRITE (register
	// 0x2C), sent once (not per chip) right after diagAfterMask.
	diagSingle [6]byte

	// perChipInit is the documented per-chip register sequence applied to
	// every chip address during bring-up step 6.
	perChipInit []chipInit

	// hashCountingRange is the value of the final broadcast WRITE (register
	// 0x10) that sets the chip's internal hash-counting window.
	hashCountingRange [4]byte
}

// Variants is the tagged-variant table selected at startup from the
// settings store's asic_model key.
var Variants = map[Model]Variant{
	BM1366: {
		Model:             BM1366,
		CoreCount:         112,
		DefaultDifficulty: 256,
		JobFrequencyMS:    500,
		miscInit1:         [6]byte{0xA8, 0x00, 0x07, 0x00, 0x00, 0x03},
		miscInit2:         [6]byte{0x18, 0xFF, 0x0F, 0xC1, 0x00, 0x00},
		diagBeforeMask: [2][6]byte{
			{0x3C, 0x80, 0x00, 0x85, 0x40, 0x0C},
			{0x3C, 0x80, 0x00, 0x80, 0x20, 0x19},
		},
		diagAfterMask: [2][6]byte{
			{0x54, 0x00, 0x00, 0x00, 0x03, 0x1D},
			{0x58, 0x02, 0x11, 0x11, 0x11, 0x06},
		},
		diagSingle:        [6]byte{0x2C, 0x00, 0x7C, 0x00, 0x03, 0x03},
		perChipInit: []chipInit{
			{register: 0xA8, value: [4]byte{0x00, 0x07, 0x01, 0xF0}},
			{register: 0x18, value: [4]byte{0xF0, 0x00, 0xC1, 0x00}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x85, 0x40}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x80, 0x20}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x82, 0xAA}},
		},
		hashCountingRange: [4]byte{0x00, 0x00, 0x15, 0x1C},
	},
	BM1368: {
		Model:             BM1368,
		CoreCount:         672,
		DefaultDifficulty: 512,
		JobFrequencyMS:    450,
		miscInit1:         [6]byte{0xA8, 0x00, 0x07, 0x00, 0x00, 0x03},
		miscInit2:         [6]byte{0x18, 0xFF, 0x0F, 0xC1, 0x00, 0x00},
		diagBeforeMask: [2][6]byte{
			{0x3C, 0x80, 0x00, 0x85, 0x40, 0x0C},
			{0x3C, 0x80, 0x00, 0x80, 0x20, 0x19},
		},
		diagAfterMask: [2][6]byte{
			{0x54, 0x00, 0x00, 0x00, 0x03, 0x1D},
			{0x58, 0x02, 0x11, 0x11, 0x11, 0x06},
		},
		diagSingle:        [6]byte{0x2C, 0x00, 0x7C, 0x00, 0x03, 0x03},
		perChipInit: []chipInit{
			{register: 0xA8, value: [4]byte{0x00, 0x07, 0x01, 0xF0}},
			{register: 0x18, value: [4]byte{0xF0, 0x00, 0xC1, 0x00}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x8B, 0x00}},
		},
		hashCountingRange: [4]byte{0x00, 0x00, 0x15, 0x1C},
	},
	BM1370: {
		Model:             BM1370,
		CoreCount:         2040,
		DefaultDifficulty: 1024,
		JobFrequencyMS:    400,
		miscInit1:         [6]byte{0xA8, 0x00, 0x07, 0x00, 0x00, 0x03},
		miscInit2:         [6]byte{0x18, 0xFF, 0x0F, 0xC1, 0x00, 0x00},
		diagBeforeMask: [2][6]byte{
			{0x3C, 0x80, 0x00, 0x85, 0x40, 0x0C},
			{0x3C, 0x80, 0x00, 0x80, 0x20, 0x19},
		},
		diagAfterMask: [2][6]byte{
			{0x54, 0x00, 0x00, 0x00, 0x03, 0x1D},
			{0x58, 0x02, 0x11, 0x11, 0x11, 0x06},
		},
		diagSingle:        [6]byte{0x2C, 0x00, 0x7C, 0x00, 0x03, 0x03},
		perChipInit: []chipInit{
			{register: 0xA8, value: [4]byte{0x00, 0x07, 0x01, 0xF0}},
			{register: 0x18, value: [4]byte{0xF0, 0x00, 0xC1, 0x00}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x90, 0x00}},
		},
		hashCountingRange: [4]byte{0x00, 0x00, 0x15, 0x1C},
	},
	BM1397: {
		Model:             BM1397,
		CoreCount:         672,
		DefaultDifficulty: 256,
		JobFrequencyMS:    500,
		miscInit1:         [6]byte{0xA8, 0x00, 0x07, 0x00, 0x00, 0x03},
		miscInit2:         [6]byte{0x18, 0xFF, 0x0F, 0xC1, 0x00, 0x00},
		diagBeforeMask: [2][6]byte{
			{0x3C, 0x80, 0x00, 0x85, 0x40, 0x0C},
			{0x3C, 0x80, 0x00, 0x80, 0x20, 0x19},
		},
		diagAfterMask: [2][6]byte{
			{0x54, 0x00, 0x00, 0x00, 0x03, 0x1D},
			{0x58, 0x02, 0x11, 0x11, 0x11, 0x06},
		},
		diagSingle:        [6]byte{0x2C, 0x00, 0x7C, 0x00, 0x03, 0x03},
		perChipInit: []chipInit{
			{register: 0xA8, value: [4]byte{0x00, 0x07, 0x01, 0xF0}},
			{register: 0x18, value: [4]byte{0xF0, 0x00, 0xC1, 0x00}},
			{register: 0x3C, value: [4]byte{0x80, 0x00, 0x85, 0x40}},
		},
		hashCountingRange: [4]byte{0x00, 0x00, 0x15, 0x1C},
	},
}
