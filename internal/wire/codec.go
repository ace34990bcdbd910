// Package wire frames and parses the ASIC daisy-chain serial protocol:
// command/job packets sent downstream, and result frames read back.
package wire

import (
	"github.com/bardlex/bitaxefw/pkg/errors"
)

// Frame type bits, combined with a group and a command into the header byte.
const (
	TypeJob byte = 0x20
	TypeCmd byte = 0x40
)

// Group bits select whether a command addresses one chip or the whole chain.
const (
	GroupSingle byte = 0x00
	GroupAll    byte = 0x10
)

// Command codes.
const (
	CmdSetAddress byte = 0x00
	CmdWrite      byte = 0x01
	CmdRead       byte = 0x02
	CmdInactive   byte = 0x03
)

// Preambles. Outbound frames (to the chain) and inbound frames (from the
// chain) are mirror images of each other.
var (
	preambleOut = [2]byte{0x55, 0xAA}
	preambleIn  = [2]byte{0xAA, 0x55}
)

// ResultFrameSize is the fixed length of a job-result frame read back from
// the chain: preamble(2) + nonce(4) + midstate_num(1) + job_id(1) + version(2) + crc(1).
const ResultFrameSize = 11

// EncodeCmd builds a complete CMD frame: preamble, header, length, payload
// and a trailing CRC-5 computed over header..end-of-payload. payload[0] is
// conventionally the target chip address (0x00 for broadcast/ALL groups).
func EncodeCmd(group, cmd byte, payload []byte) []byte {
	header := TypeCmd | group | cmd
	total := len(payload) + 5
	buf := make([]byte, total)
	buf[0], buf[1] = preambleOut[0], preambleOut[1]
	buf[2] = header
	buf[3] = byte(len(payload) + 3)
	copy(buf[4:], payload)
	buf[total-1] = CRC5(buf[2 : total-1])
	return buf
}

// EncodeJob builds a complete JOB frame: preamble, header, length, payload
// and a trailing big-endian CRC-16/FALSE computed over header..end-of-payload.
func EncodeJob(group, cmd byte, payload []byte) []byte {
	header := TypeJob | group | cmd
	total := len(payload) + 6
	buf := make([]byte, total)
	buf[0], buf[1] = preambleOut[0], preambleOut[1]
	buf[2] = header
	buf[3] = byte(len(payload) + 4)
	copy(buf[4:], payload)
	crc := CRC16False(buf[2 : total-2])
	buf[total-2] = byte(crc >> 8)
	buf[total-1] = byte(crc)
	return buf
}

// Frame is a decoded CMD or JOB frame.
type Frame struct {
	IsJob   bool
	Header  byte
	Payload []byte
}

// DecodeFrame parses a complete outbound-format frame (preamble 0x55 0xAA)
// and verifies its trailing CRC. It is primarily used by tests and by any
// loopback fake that needs to interpret what the driver transmitted.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < 5 {
		return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_frame", "short frame")
	}
	if buf[0] != preambleOut[0] || buf[1] != preambleOut[1] {
		return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_frame", "bad preamble")
	}
	header := buf[2]
	isJob := header&TypeJob != 0
	length := int(buf[3])
	if isJob {
		payloadLen := length - 4
		if payloadLen < 0 || len(buf) != payloadLen+6 {
			return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_frame", "short frame")
		}
		payload := buf[4 : 4+payloadLen]
		got := uint16(buf[4+payloadLen])<<8 | uint16(buf[5+payloadLen])
		if want := CRC16False(buf[2 : 4+payloadLen]); got != want {
			return nil, errors.New(errors.ErrorTypeWireCrcMismatch, "decode_frame", "crc mismatch")
		}
		return &Frame{IsJob: true, Header: header, Payload: payload}, nil
	}

	payloadLen := length - 3
	if payloadLen < 0 || len(buf) != payloadLen+5 {
		return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_frame", "short frame")
	}
	payload := buf[4 : 4+payloadLen]
	got := buf[4+payloadLen]
	if want := CRC5(buf[2 : 4+payloadLen]); got != want {
		return nil, errors.New(errors.ErrorTypeWireCrcMismatch, "decode_frame", "crc mismatch")
	}
	return &Frame{IsJob: false, Header: header, Payload: payload}, nil
}

// ResultFrame is the 11-byte packet a chip returns once it finds a nonce
// matching the active ticket mask.
type ResultFrame struct {
	Nonce       uint32
	MidstateNum byte
	JobID       byte
	Version     uint16
	CRC         byte
}

// DecodeResult parses an inbound (0xAA 0x55) 11-byte result frame.
func DecodeResult(buf []byte) (*ResultFrame, error) {
	if len(buf) != ResultFrameSize {
		return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_result", "short frame")
	}
	if buf[0] != preambleIn[0] || buf[1] != preambleIn[1] {
		return nil, errors.New(errors.ErrorTypeWireShortFrame, "decode_result", "bad preamble")
	}
	crc := buf[10]
	if want := CRC5(buf[2:10]); crc != want {
		return nil, errors.New(errors.ErrorTypeWireCrcMismatch, "decode_result", "crc mismatch")
	}
	return &ResultFrame{
		Nonce:       uint32(buf[2]) | uint32(buf[3])<<8 | uint32(buf[4])<<16 | uint32(buf[5])<<24,
		MidstateNum: buf[6],
		JobID:       buf[7],
		Version:     uint16(buf[8]) | uint16(buf[9])<<8,
		CRC:         crc,
	}, nil
}

// EncodeResult re-serializes a ResultFrame; used by the in-memory fake
// transport in tests to synthesize chip replies.
func EncodeResult(r *ResultFrame) []byte {
	buf := make([]byte, ResultFrameSize)
	buf[0], buf[1] = preambleIn[0], preambleIn[1]
	buf[2] = byte(r.Nonce)
	buf[3] = byte(r.Nonce >> 8)
	buf[4] = byte(r.Nonce >> 16)
	buf[5] = byte(r.Nonce >> 24)
	buf[6] = r.MidstateNum
	buf[7] = r.JobID
	buf[8] = byte(r.Version)
	buf[9] = byte(r.Version >> 8)
	buf[10] = CRC5(buf[2:10])
	return buf
}
