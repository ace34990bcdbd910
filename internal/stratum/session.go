package stratum

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/bitaxefw/pkg/log"
)

// Session owns one TCP connection to a pool and the per-connection state
// that a pool reconnect must reset: the request-id counter (the original
// firmware calls this send_uid and explicitly resets it on reconnect so the
// pool never sees a ghost id from the previous socket) and the line reader.
type Session struct {
	conn   net.Conn
	logger *log.Logger
	reader *bufio.Scanner

	readTimeout  time.Duration
	writeTimeout time.Duration

	nextID int64

	mu              sync.RWMutex
	extraNonce1     string
	extraNonce2Size int
	versionMask     uint32
	difficulty      float64
}

// NewSession wraps conn as a fresh Stratum session with its id counter at 1,
// matching STRATUM_V1_reset_uid's contract of resetting to 1 rather than 0
// (a 0 id exists on the wire but is reserved for unsolicited id-less
// notifications in some pool implementations).
func NewSession(conn net.Conn, logger *log.Logger, readTimeout, writeTimeout time.Duration) *Session {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	return &Session{
		conn:         conn,
		logger:       logger.WithFields("remote_addr", conn.RemoteAddr().String()),
		reader:       scanner,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		nextID:       1,
		difficulty:   1.0,
	}
}

// NextID returns the next unique request id and advances the counter.
func (s *Session) NextID() int {
	return int(atomic.AddInt64(&s.nextID, 1) - 1)
}

// ReadMessage blocks for the next newline-delimited JSON-RPC message, or
// returns an error once readTimeout elapses without one. A line that does
// not parse is logged and skipped.
func (s *Session) ReadMessage() (*Message, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	if !s.reader.Scan() {
		if err := s.reader.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("stratum connection closed by pool")
	}

	line := s.reader.Bytes()
	s.logger.LogStratumMessage("received", string(line))
	msg, err := unmarshalMessage(line)
	if err != nil {
		s.logger.WithError(err).Warn("discarding unparseable stratum line")
		return s.ReadMessage()
	}
	return msg, nil
}

// Send marshals and writes msg, newline-delimited, with writeTimeout applied.
func (s *Session) Send(msg *Message) error {
	data, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("write stratum message: %w", err)
	}
	s.logger.LogStratumMessage("sent", string(data[:len(data)-1]))
	return nil
}

// SendRequest allocates the next request id, sends method(params), and
// returns the id so the caller can correlate the eventual response.
func (s *Session) SendRequest(method string, params []any) (int, error) {
	id := s.NextID()
	if err := s.Send(newRequest(id, method, params)); err != nil {
		return id, err
	}
	return id, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// ExtraNonce1 returns the server-assigned extranonce1 hex string.
func (s *Session) ExtraNonce1() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extraNonce1
}

// SetExtraNonce sets the subscribe result's extranonce1 and extranonce2 size.
func (s *Session) SetExtraNonce(extraNonce1 string, extraNonce2Size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraNonce1 = extraNonce1
	s.extraNonce2Size = extraNonce2Size
}

// ExtraNonce2Size returns the number of bytes the miner must generate itself.
func (s *Session) ExtraNonce2Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extraNonce2Size
}

// VersionMask returns the version-rolling mask granted by mining.configure.
func (s *Session) VersionMask() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionMask
}

// SetVersionMask updates the version-rolling mask, e.g. from
// mining.set_version_mask.
func (s *Session) SetVersionMask(mask uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versionMask = mask
}

// Difficulty returns the pool-assigned share difficulty.
func (s *Session) Difficulty() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.difficulty
}

// SetDifficulty updates the share difficulty, e.g. from mining.set_difficulty.
func (s *Session) SetDifficulty(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.difficulty = d
}
