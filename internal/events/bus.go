// Package events is the pipeline's telemetry side channel: a ZeroMQ PUB
// socket publishing topic-tagged JSON event frames for the (out-of-scope)
// dashboard and any other external consumer. It mirrors
// bardlex-GoPool/internal/bitcoin.ZMQNotifier's topic/payload framing but
// inverted — this process is the publisher, not the subscriber — and every
// publish is best-effort: a slow, absent, or nonexistent subscriber must
// never stall mining.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/bardlex/bitaxefw/pkg/log"
)

// Type tags which variant of PipelineEvent a payload carries.
type Type string

const (
	TypeJobCreated       Type = "job_created"
	TypeShareSubmitted   Type = "share_submitted"
	TypeBlockFound       Type = "block_found"
	TypePoolFailover     Type = "pool_failover"
	TypeAsicNotResponding Type = "asic_not_responding"
)

// PipelineEvent is the tagged-union payload published on the bus. Only the
// fields relevant to Type are populated; the rest are zero.
type PipelineEvent struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// ShareSubmitted
	Accepted   bool    `json:"accepted,omitempty"`
	Difficulty float64 `json:"difficulty,omitempty"`
	Reason     string  `json:"reason,omitempty"`

	// BlockFound reuses Difficulty above.

	// PoolFailover
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// AsicNotResponding
	ConsecutiveTimeouts int `json:"consecutive_timeouts,omitempty"`

	// JobCreated
	JobID string `json:"job_id,omitempty"`
}

// Bus wraps a ZeroMQ PUB socket. Callers construct one event struct per
// occurrence and call Publish; no subscriber is assumed present.
type Bus struct {
	socket *zmq.Socket
	logger *log.Logger
}

// New binds a PUB socket at addr (e.g. "tcp://*:28400") and returns a Bus
// ready to publish. Binding (not connecting) matches a long-lived service
// publishing to whichever dashboards come and go.
func New(addr string, logger *log.Logger) (*Bus, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("create zmq PUB socket: %w", err)
	}
	// A publisher that blocks at process exit waiting to flush to a
	// subscriber that will never arrive is worse than dropping the
	// in-flight message.
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("set zmq linger: %w", err)
	}
	if err := socket.Bind(addr); err != nil {
		socket.Close()
		return nil, fmt.Errorf("bind zmq PUB socket to %s: %w", addr, err)
	}
	return &Bus{socket: socket, logger: logger.WithComponent("events")}, nil
}

// Publish sends ev on the bus, tagged with its Type as the ZMQ topic frame
// so subscribers can filter server-side without decoding JSON they don't
// want. Publish never blocks the caller on I/O failure: it logs and
// returns, matching §4.5's "non-blocking; a full/absent subscriber never
// stalls mining" contract.
func (b *Bus) Publish(ev PipelineEvent) {
	if b == nil || b.socket == nil {
		return
	}
	ev.Timestamp = time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.WithError(err).Warn("failed to marshal pipeline event", "type", ev.Type)
		return
	}

	if _, err := b.socket.SendMessage(string(ev.Type), payload); err != nil {
		b.logger.WithError(err).Debug("failed to publish pipeline event", "type", ev.Type)
	}
}

// Close releases the underlying socket.
func (b *Bus) Close() error {
	if b == nil || b.socket == nil {
		return nil
	}
	return b.socket.Close()
}
