package wire

import (
	"bytes"
	"testing"
)

func TestEncodeCmdScenario(t *testing.T) {
	payload := []byte{0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}
	frame := EncodeCmd(GroupSingle, CmdWrite, payload)

	want := []byte{0x55, 0xAA, 0x41, 0x09, 0x00, 0x14, 0x00, 0x00, 0x00, 0xFF}
	if !bytes.Equal(frame[:len(want)], want) {
		t.Fatalf("header/payload mismatch: got %x want %x", frame[:len(want)], want)
	}
	if len(frame) != len(want)+1 {
		t.Fatalf("expected a single trailing CRC byte, got length %d", len(frame))
	}
	if got := CRC5(frame[2 : len(frame)-1]); got != frame[len(frame)-1] {
		t.Fatalf("trailing byte %x does not match CRC5(%x)=%x", frame[len(frame)-1], frame[2:len(frame)-1], got)
	}
}

func TestEncodeDecodeCmdRoundTrip(t *testing.T) {
	payload := []byte{0x08, 0xA8, 0x00, 0x07, 0x01, 0xF0}
	frame := EncodeCmd(GroupSingle, CmdWrite, payload)

	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.IsJob {
		t.Fatal("expected a CMD frame")
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: got %x want %x", decoded.Payload, payload)
	}
}

func TestEncodeDecodeJobRoundTrip(t *testing.T) {
	payload := make([]byte, 44)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := EncodeJob(GroupSingle, CmdWrite, payload)

	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !decoded.IsJob {
		t.Fatal("expected a JOB frame")
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: got %x want %x", decoded.Payload, payload)
	}
}

func TestDecodeFrameRejectsBadPreamble(t *testing.T) {
	frame := EncodeCmd(GroupAll, CmdInactive, []byte{0x00, 0x00})
	frame[0] = 0x00
	if _, err := DecodeFrame(frame); err == nil {
		t.Fatal("expected bad preamble error")
	}
}

func TestDecodeFrameRejectsCorruptCRC(t *testing.T) {
	frame := EncodeCmd(GroupAll, CmdInactive, []byte{0x00, 0x00})
	frame[len(frame)-1] ^= 0xFF
	if _, err := DecodeFrame(frame); err == nil {
		t.Fatal("expected crc mismatch error")
	}
}

func TestDecodeResultScenario(t *testing.T) {
	buf := []byte{0xAA, 0x55, 0x78, 0x56, 0x34, 0x12, 0x00, 0x38, 0x01, 0x00, 0x00}
	buf[10] = CRC5(buf[2:10])

	result, err := DecodeResult(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if result.Nonce != 0x12345678 {
		t.Fatalf("nonce = %#x, want 0x12345678", result.Nonce)
	}
	if result.JobID != 0x38 {
		t.Fatalf("job id = %#x, want 0x38", result.JobID)
	}
	if result.Version != 0x0001 {
		t.Fatalf("version = %#x, want 0x0001", result.Version)
	}
}

func TestEncodeDecodeResultRoundTrip(t *testing.T) {
	r := &ResultFrame{Nonce: 0xDEADBEEF, MidstateNum: 2, JobID: 0x20, Version: 0xABCD}
	buf := EncodeResult(r)
	// EncodeResult computes the CRC5 trailer itself; the decoded frame
	// carries that computed value.
	r.CRC = buf[ResultFrameSize-1]

	decoded, err := DecodeResult(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *r {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, r)
	}
}

func TestDecodeResultRejectsShortFrame(t *testing.T) {
	if _, err := DecodeResult(make([]byte, 5)); err == nil {
		t.Fatal("expected short frame error")
	}
}
