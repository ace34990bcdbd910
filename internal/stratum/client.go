package stratum

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bardlex/bitaxefw/pkg/errors"
	"github.com/bardlex/bitaxefw/pkg/log"
)

// MiningNotification is a mining.notify push, decoded from hex into the
// bytes a job builder actually needs; prev_hash is kept as the hex string
// the pool sent since its word order is a header-assembly concern, not a
// transport one.
type MiningNotification struct {
	JobID        string
	PrevHashHex  string
	Coinbase1    []byte
	Coinbase2    []byte
	MerkleBranch [][]byte
	Version      uint32
	NBits        uint32
	NTime        uint32
	CleanJobs    bool
}

// Dialer abstracts net.Dial so tests can substitute an in-memory pipe.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// DefaultDialer dials addr over plain TCP.
func DefaultDialer(ctx context.Context, addr string) (net.Conn, error) {
	return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
}

// Endpoint is one pool address the client can connect to.
type Endpoint struct {
	Addr string
	User string
	Pass string
}

// Client drives one Stratum V1 session against a single endpoint: it
// performs the configure/subscribe/authorize startup sequence and then
// dispatches inbound pushes to the caller via channels, and submits shares
// on request. Primary/fallback failover across multiple endpoints is
// handled by FailoverClient (pools.go), one layer up, not here.
//
// Once Run is started, it is the session's *only* reader: every line off
// the wire, including mining.submit's own response, passes through
// dispatch. Callers waiting on a specific response (SubmitShare) register a
// channel keyed by request id instead of reading the session themselves, so
// there is never more than one goroutine calling session.ReadMessage.
type Client struct {
	dialer Dialer
	logger *log.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	session *Session

	mu      sync.Mutex
	pending map[int]chan *Message

	Notifications chan MiningNotification
	Disconnected  chan error
}

// NewClient returns a client bound to the given I/O timeouts. Use Dial to
// connect and run the startup sequence.
func NewClient(logger *log.Logger, readTimeout, writeTimeout time.Duration) *Client {
	return &Client{
		dialer:        DefaultDialer,
		logger:        logger.WithComponent("stratum"),
		readTimeout:   readTimeout,
		writeTimeout:  writeTimeout,
		pending:       make(map[int]chan *Message),
		Notifications: make(chan MiningNotification, 4),
		Disconnected:  make(chan error, 1),
	}
}

// awaitResponse registers a one-shot channel that dispatch will deliver the
// response for request id onto, once Run's reader loop sees it.
func (c *Client) awaitResponse(id int) chan *Message {
	ch := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// cancelResponse removes a pending waiter without delivering to it, used
// when a caller gives up (e.g. on timeout) before dispatch resolves it.
func (c *Client) cancelResponse(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolveResponse delivers msg to the waiter registered for id, if any, and
// reports whether one was found.
func (c *Client) resolveResponse(id int, msg *Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

// Dial connects to endpoint and runs mining.configure, mining.subscribe,
// and mining.authorize in sequence, returning once authorization succeeds
// or any step fails.
func (c *Client) Dial(ctx context.Context, ep Endpoint) error {
	conn, err := c.dialer(ctx, ep.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "stratum_dial", "connect to pool")
	}
	c.session = NewSession(conn, c.logger, c.readTimeout, c.writeTimeout)

	if _, err := c.session.SendRequest("mining.configure", []any{
		[]any{"version-rolling"},
		map[string]any{"version-rolling.mask": "ffffffff"},
	}); err != nil {
		return err
	}
	if err := c.awaitConfigureResult(); err != nil {
		c.logger.WithError(err).Warn("pool did not grant version rolling")
	}

	if _, err := c.session.SendRequest("mining.subscribe", []any{fmt.Sprintf("bitaxefw/%s", clientVersion)}); err != nil {
		return err
	}
	if err := c.awaitSubscribeResult(); err != nil {
		return err
	}

	if _, err := c.session.SendRequest("mining.authorize", []any{ep.User, ep.Pass}); err != nil {
		return err
	}
	if err := c.awaitAuthorizeResult(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStratumAuthFailed, "stratum_authorize", "pool rejected credentials")
	}

	return nil
}

const clientVersion = "1.0.0"

func (c *Client) awaitConfigureResult() error {
	msg, err := c.session.ReadMessage()
	if err != nil {
		return err
	}
	var result map[string]any
	if err := unmarshalInto(msg.Result, &result); err != nil {
		return err
	}
	maskHex, ok := result["version-rolling.mask"].(string)
	if !ok {
		return fmt.Errorf("pool did not return version-rolling.mask")
	}
	mask, err := strconv.ParseUint(maskHex, 16, 32)
	if err != nil {
		return fmt.Errorf("invalid version-rolling.mask %q: %w", maskHex, err)
	}
	c.session.SetVersionMask(uint32(mask))
	return nil
}

func (c *Client) awaitSubscribeResult() error {
	msg, err := c.session.ReadMessage()
	if err != nil {
		return err
	}
	var result []any
	if err := unmarshalInto(msg.Result, &result); err != nil {
		return err
	}
	if len(result) < 3 {
		return fmt.Errorf("mining.subscribe: expected 3 result elements, got %d", len(result))
	}
	extraNonce1, _ := result[1].(string)
	size, _ := result[2].(float64)
	c.session.SetExtraNonce(extraNonce1, int(size))
	return nil
}

func (c *Client) awaitAuthorizeResult() error {
	msg, err := c.session.ReadMessage()
	if err != nil {
		return err
	}
	var ok bool
	if err := unmarshalInto(msg.Result, &ok); err != nil || !ok {
		return fmt.Errorf("mining.authorize: pool returned false")
	}
	return nil
}

// Run reads the session in a loop, pushing decoded notifications to
// Notifications and stopping when ctx is canceled or the connection drops.
// It is meant to run in its own goroutine (the StratumReader task).
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.session.ReadMessage()
		if err != nil {
			select {
			case c.Disconnected <- err:
			default:
			}
			return
		}
		if fatal := c.dispatch(msg); fatal != nil {
			select {
			case c.Disconnected <- fatal:
			default:
			}
			return
		}
	}
}

// dispatch handles one inbound message and returns a non-nil error only for
// the protocol violations §4.3 says must abort and reconnect the session
// (malformed mining.notify params) and for client.reconnect, which ends the
// session so the caller re-dials its configured endpoints; a single bad
// JSON-RPC line elsewhere is logged and discarded without tearing down the
// connection.
func (c *Client) dispatch(msg *Message) error {
	switch msg.Method {
	case "mining.notify":
		var params []any
		if err := unmarshalInto(msg.Params, &params); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStratumProtocol, "mining_notify", "malformed params")
		}
		notify, err := ParseNotify(params)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeStratumProtocol, "mining_notify", "invalid params")
		}
		n, err := decodeNotify(notify)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeStratumProtocol, "mining_notify", "invalid hex fields")
		}
		select {
		case c.Notifications <- *n:
		default:
			c.logger.Warn("dropping mining.notify: notification queue full")
		}

	case "mining.set_difficulty":
		var params []any
		if err := unmarshalInto(msg.Params, &params); err != nil {
			return nil
		}
		d, err := ParseSetDifficulty(params)
		if err == nil {
			c.session.SetDifficulty(d)
		}

	case "mining.set_version_mask":
		var params []any
		if err := unmarshalInto(msg.Params, &params); err != nil {
			return nil
		}
		maskHex, err := ParseSetVersionMask(params)
		if err != nil {
			return nil
		}
		mask, err := strconv.ParseUint(maskHex, 16, 32)
		if err == nil {
			c.session.SetVersionMask(uint32(mask))
		}

	case "client.reconnect":
		var params []any
		_ = unmarshalInto(msg.Params, &params)
		host, port, _ := ParseClientReconnect(params)
		return fmt.Errorf("client.reconnect requested host=%q port=%d", host, port)

	case "":
		// a response to one of our own requests (submit, suggest_difficulty).
		// Run is the session's only reader once it starts, so every response
		// — including mining.submit's ack — arrives here and is routed to
		// whichever caller is waiting on its id via awaitResponse/pending.
		var id int
		if f, ok := msg.ID.(float64); ok {
			id = int(f)
		}
		if !c.resolveResponse(id, msg) {
			c.logger.Debug("unmatched stratum response", "id", msg.ID)
		}
	default:
		c.logger.Debug("unhandled stratum method", "method", msg.Method)
	}
	return nil
}

func decodeNotify(n *Notify) (*MiningNotification, error) {
	coinb1, err := hex.DecodeString(n.Coinbase1)
	if err != nil {
		return nil, fmt.Errorf("decode coinb1: %w", err)
	}
	coinb2, err := hex.DecodeString(n.Coinbase2)
	if err != nil {
		return nil, fmt.Errorf("decode coinb2: %w", err)
	}
	branches := make([][]byte, len(n.MerkleBranch))
	for i, b := range n.MerkleBranch {
		decoded, err := hex.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("decode merkle_branch[%d]: %w", i, err)
		}
		branches[i] = decoded
	}
	version, err := strconv.ParseUint(n.Version, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	nbits, err := strconv.ParseUint(n.NBits, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("decode nbits: %w", err)
	}
	ntime, err := strconv.ParseUint(n.NTime, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("decode ntime: %w", err)
	}
	return &MiningNotification{
		JobID:        n.JobID,
		PrevHashHex:  n.PrevHash,
		Coinbase1:    coinb1,
		Coinbase2:    coinb2,
		MerkleBranch: branches,
		Version:      uint32(version),
		NBits:        uint32(nbits),
		NTime:        uint32(ntime),
		CleanJobs:    n.CleanJobs,
	}, nil
}

// SubmitShare sends mining.submit for a found nonce and reports whether the
// pool accepted it. extraNonce2 and nonce/nTime/version are pre-formatted
// as the fixed-width hex strings the wire format expects.
//
// The response is not read inline: Run's dispatch loop is the session's
// only reader, so SubmitShare registers a pending waiter keyed by the
// request id and blocks on it (bounded by readTimeout) instead of racing
// Run for the next line off the wire.
func (c *Client) SubmitShare(user, jobID, extraNonce2, nTimeHex, nonceHex, versionHex string) (bool, string, error) {
	id, err := c.session.SendRequest("mining.submit", []any{user, jobID, extraNonce2, nTimeHex, nonceHex, versionHex})
	if err != nil {
		return false, "", err
	}

	ch := c.awaitResponse(id)
	var msg *Message
	select {
	case msg = <-ch:
	case <-time.After(c.readTimeout):
		c.cancelResponse(id)
		return false, "", fmt.Errorf("mining.submit: timed out waiting for pool response")
	}

	if len(msg.Error) > 0 && string(msg.Error) != "null" {
		var errArr []any
		_ = unmarshalInto(msg.Error, &errArr)
		reason := "rejected"
		if len(errArr) >= 2 {
			if s, ok := errArr[1].(string); ok {
				reason = s
			}
		}
		return false, reason, nil
	}

	var accepted bool
	_ = unmarshalInto(msg.Result, &accepted)
	return accepted, "", nil
}

// ExtraNonce1 returns the server-assigned extranonce1 hex string for the
// active session.
func (c *Client) ExtraNonce1() string { return c.session.ExtraNonce1() }

// ExtraNonce2Size returns the extranonce2 width the active session requires.
func (c *Client) ExtraNonce2Size() int { return c.session.ExtraNonce2Size() }

// VersionMask returns the version-rolling mask granted for the active session.
func (c *Client) VersionMask() uint32 { return c.session.VersionMask() }

// Difficulty returns the pool-assigned share difficulty for the active session.
func (c *Client) Difficulty() float64 { return c.session.Difficulty() }

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
