package stratum

import "sync"

// bufferPool holds 4096-byte buffers handed out by GetBuffer and taken back
// by PutBuffer. Nothing in this package calls them: NewSession allocates a
// fresh buffer for each session's line scanner.
var bufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 4096)
	},
}

// GetBuffer gets a byte buffer from the pool.
func GetBuffer() []byte {
	return bufferPool.Get().([]byte)
}

// PutBuffer returns a byte buffer to the pool.
func PutBuffer(buf []byte) {
	if buf != nil {
		bufferPool.Put(buf)
	}
}
