package wire

// CRC5 computes the 5-bit CRC the BM13xx chips expect on CMD frames. It is a
// bit-serial LFSR matching the ASIC's own checker, not a byte-table CRC.
func CRC5(data []byte) byte {
	var state [5]byte
	for i := range state {
		state[i] = 1
	}
	for _, b := range data {
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			din := byte(0)
			if b&mask != 0 {
				din = 1
			}
			next0 := state[4] ^ din
			next2 := state[1] ^ state[4] ^ din
			state[1], state[2], state[3], state[4] = state[0], next2, state[2], state[3]
			state[0] = next0
		}
	}
	var crc byte
	for i, bit := range state {
		if bit != 0 {
			crc |= 1 << i
		}
	}
	return crc
}

// CRC16False computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection, no xorout) over data, used as the JOB frame trailer.
func CRC16False(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
