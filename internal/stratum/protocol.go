// Package stratum implements a Stratum V1 mining client: it dials out to a
// pool, performs the subscribe/authorize handshake, decodes mining.notify
// and related server pushes, and submits shares found by the ASIC chain.
package stratum

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Message is the line-delimited JSON-RPC 1.0 envelope used in both
// directions. Params is left as raw JSON because requests we send use a
// positional array while results we receive vary in shape per method
// (string, bool, object, or array) and are decoded field-by-field once the
// method/id tells us which. sonic.Unmarshal/Marshal honor json.RawMessage
// the same way encoding/json does, so the hot path still runs through sonic.
type Message struct {
	ID     any             `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Common Stratum error codes, used when translating a pool's rejection into
// a PoolReject-kind error.
const (
	ErrorOther          = 20
	ErrorJobNotFound    = 21
	ErrorDuplicateShare = 22
	ErrorLowDifficulty  = 23
	ErrorUnauthorized   = 24
	ErrorNotSubscribed  = 25
)

// Request ids below 5 cover the fixed startup sequence: on a fresh session
// Dial sends configure, subscribe and authorize as ids 1, 2 and 3. The
// dispatcher does not consult this boundary; it routes every response by
// its id alone.
const setupIDBoundary = 5

// Notify is mining.notify's positional parameter list, decoded directly
// from the wire array rather than a named-field object — the pool does not
// send field names.
type Notify struct {
	JobID        string
	PrevHash     string
	Coinbase1    string
	Coinbase2    string
	MerkleBranch []string
	Version      string
	NBits        string
	NTime        string
	CleanJobs    bool
}

// ParseNotify decodes a mining.notify params array into a Notify.
func ParseNotify(params []any) (*Notify, error) {
	if len(params) < 9 {
		return nil, fmt.Errorf("mining.notify: expected 9 params, got %d", len(params))
	}
	n := &Notify{}
	var ok bool
	if n.JobID, ok = params[0].(string); !ok {
		return nil, fmt.Errorf("mining.notify: job_id must be string")
	}
	if n.PrevHash, ok = params[1].(string); !ok {
		return nil, fmt.Errorf("mining.notify: prevhash must be string")
	}
	if n.Coinbase1, ok = params[2].(string); !ok {
		return nil, fmt.Errorf("mining.notify: coinb1 must be string")
	}
	if n.Coinbase2, ok = params[3].(string); !ok {
		return nil, fmt.Errorf("mining.notify: coinb2 must be string")
	}
	branchRaw, ok := params[4].([]any)
	if !ok {
		return nil, fmt.Errorf("mining.notify: merkle_branch must be array")
	}
	n.MerkleBranch = make([]string, len(branchRaw))
	for i, v := range branchRaw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("mining.notify: merkle_branch[%d] must be string", i)
		}
		n.MerkleBranch[i] = s
	}
	if n.Version, ok = params[5].(string); !ok {
		return nil, fmt.Errorf("mining.notify: version must be string")
	}
	if n.NBits, ok = params[6].(string); !ok {
		return nil, fmt.Errorf("mining.notify: nbits must be string")
	}
	if n.NTime, ok = params[7].(string); !ok {
		return nil, fmt.Errorf("mining.notify: ntime must be string")
	}
	n.CleanJobs, _ = params[8].(bool)
	return n, nil
}

// ParseSetDifficulty decodes mining.set_difficulty's single-element params.
func ParseSetDifficulty(params []any) (float64, error) {
	if len(params) < 1 {
		return 0, fmt.Errorf("mining.set_difficulty: missing difficulty")
	}
	d, ok := params[0].(float64)
	if !ok {
		return 0, fmt.Errorf("mining.set_difficulty: difficulty must be numeric")
	}
	return d, nil
}

// ParseSetVersionMask decodes mining.set_version_mask's single hex-string param.
func ParseSetVersionMask(params []any) (string, error) {
	if len(params) < 1 {
		return "", fmt.Errorf("mining.set_version_mask: missing mask")
	}
	mask, ok := params[0].(string)
	if !ok {
		return "", fmt.Errorf("mining.set_version_mask: mask must be string")
	}
	return mask, nil
}

// ParseClientReconnect decodes client.reconnect's [host, port, wait] params.
// Host and port are optional; an empty host means "same host, new port" and
// pools omitting the field entirely mean "reconnect now, same endpoint".
func ParseClientReconnect(params []any) (host string, port int, err error) {
	if len(params) >= 1 {
		host, _ = params[0].(string)
	}
	if len(params) >= 2 {
		switch p := params[1].(type) {
		case float64:
			port = int(p)
		case string:
			fmt.Sscanf(p, "%d", &port)
		}
	}
	return host, port, nil
}

func newRequest(id int, method string, params []any) *Message {
	raw, _ := sonic.Marshal(params)
	return &Message{ID: id, Method: method, Params: json.RawMessage(raw)}
}

func marshalMessage(msg *Message) ([]byte, error) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal stratum message: %w", err)
	}
	return data, nil
}

func unmarshalMessage(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal stratum message: %w", err)
	}
	return &msg, nil
}

// unmarshalInto decodes a raw params/result/error field into v. A nil or
// empty raw message is a no-op, matching fields that are absent on the wire.
func unmarshalInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, v)
}
