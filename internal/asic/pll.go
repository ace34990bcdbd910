package asic

import "math"

// dividers is a candidate PLL configuration and the frequency it realizes.
type dividers struct {
	fb    int
	ref   int
	post1 int
	post2 int
	freq  float64
}

// searchDividers finds an (fb, ref, post1, post2) combination for targetMHz,
// searching ref descending, post1 descending, post2 ascending as the
// original firmware does. It returns ok=false if nothing in range beats the
// firmware's own acceptance threshold (min_difference seeded at 10 MHz).
//
// This intentionally stops at the *first* candidate that beats the
// threshold rather than continuing to search for the global minimum:
// BM1366_send_hash_frequency's triple loop guards every level with
// `&& fb_divider == 0`, so as soon as one candidate satisfies
// `freq_diff < min_difference` it breaks out of the innermost loop and the
// `fb_divider == 0` guard immediately unwinds the two outer loops too —
// min_difference is never tightened by a second comparison. Continuing to
// search for a strictly smaller diff, as a literal reading of "minimizing"
// suggests, picks different PLL dividers than the hardware firmware does
// for a broad range of targets.
func searchDividers(targetMHz float64) (dividers, bool) {
	const refMult = 25.0
	const threshold = 10.0 // matches the original firmware's min_difference seed

	for ref := 2; ref >= 1; ref-- {
		for post1 := 7; post1 >= 1; post1-- {
			for post2 := 1; post2 < post1; post2++ {
				fb := int(math.Round(float64(post1*post2) * targetMHz * float64(ref) / refMult))
				if fb < 144 || fb > 235 {
					continue
				}
				freq := refMult * float64(fb) / float64(ref*post1*post2)
				diff := math.Abs(targetMHz - freq)
				if diff < threshold {
					return dividers{fb: fb, ref: ref, post1: post1, post2: post2, freq: freq}, true
				}
			}
		}
	}
	return dividers{}, false
}

// hashFrequencyPayload builds the 6-byte on-wire WRITE payload for the
// PLL0_PARAMETER register (0x08) that sets the chip's hash frequency,
// returning the payload and the frequency it actually realizes. On search
// failure it falls back to the documented 200 MHz default divider set.
func hashFrequencyPayload(targetMHz float64) ([6]byte, float64) {
	payload := [6]byte{0x00, 0x08, 0x40, 0xA0, 0x02, 0x41}

	d, ok := searchDividers(targetMHz)
	if !ok {
		return payload, 200.0
	}

	payload[3] = byte(d.fb)
	payload[4] = byte(d.ref)
	payload[5] = byte((((d.post1 - 1) & 0xF) << 4) | ((d.post2 - 1) & 0xF))
	if float64(d.fb)*25.0/float64(d.ref) >= 2400 {
		payload[2] = 0x50 // high-VCO bit
	}
	return payload, d.freq
}

// frequencyRampSteps computes the sequence of intermediate frequencies used
// to walk from current to target in 6.25 MHz increments, first aligning to
// a step boundary in the direction of travel, ending exactly on target.
func frequencyRampSteps(current, target float64) []float64 {
	const step = 6.25
	if current == target {
		return []float64{target}
	}

	var steps []float64
	direction := step
	if target < current {
		direction = -step
	}

	if math.Mod(current, step) != 0 {
		if direction > 0 {
			current = math.Ceil(current/step) * step
		} else {
			current = math.Floor(current/step) * step
		}
		steps = append(steps, current)
	}

	for (direction > 0 && current < target) || (direction < 0 && current > target) {
		next := math.Min(math.Abs(direction), math.Abs(target-current))
		if direction > 0 {
			current += next
		} else {
			current -= next
		}
		steps = append(steps, current)
	}

	if len(steps) == 0 || steps[len(steps)-1] != target {
		steps = append(steps, target)
	}
	return steps
}
