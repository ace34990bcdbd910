package jobbuilder

import "testing"

func TestReverseWordsReversesWordOrderOnly(t *testing.T) {
	le := make([]byte, 32)
	for i := range le {
		le[i] = byte(i)
	}

	got := reverseWords(le)

	want := []byte{
		0x1c, 0x1d, 0x1e, 0x1f,
		0x18, 0x19, 0x1a, 0x1b,
		0x14, 0x15, 0x16, 0x17,
		0x10, 0x11, 0x12, 0x13,
		0x0c, 0x0d, 0x0e, 0x0f,
		0x08, 0x09, 0x0a, 0x0b,
		0x04, 0x05, 0x06, 0x07,
		0x00, 0x01, 0x02, 0x03,
	}

	if len(got) != len(want) {
		t.Fatalf("reverseWords length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reverseWords()[%d] = %#x, want %#x (full: %x)", i, got[i], want[i], got)
		}
	}

	// each word's own byte order must be untouched, unlike a plain full
	// reversal (which would also flip 0x1c1d1e1f to 0x1f1e1d1c).
	if got[0] == 0x1f {
		t.Fatal("reverseWords flipped intra-word byte order, want word order reversed only")
	}
}
