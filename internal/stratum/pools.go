package stratum

import (
	"context"
	"time"

	"github.com/bardlex/bitaxefw/pkg/circuit"
	"github.com/bardlex/bitaxefw/pkg/log"
)

// FailoverClient wraps a primary and an optional fallback Endpoint behind a
// circuit breaker: repeated dial/authorize failures against the primary
// trip the breaker open and route subsequent connect attempts to fallback.
type FailoverClient struct {
	primary     Endpoint
	fallback    Endpoint
	hasFallback bool

	breaker *circuit.Breaker
	logger  *log.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	Active         *Client
	activeEndpoint Endpoint
}

// NewFailoverClient configures a failover client: three dial or authorize
// failures counted within the breaker's 60s reset window trip it open, and
// it stays open for 30s before it lets a half-open attempt through.
func NewFailoverClient(primary Endpoint, fallback *Endpoint, logger *log.Logger, readTimeout, writeTimeout time.Duration) *FailoverClient {
	fc := &FailoverClient{
		primary:      primary,
		logger:       logger,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		breaker: circuit.New(&circuit.Config{
			MaxFailures:     3,
			SuccessRequired: 1,
			Timeout:         30 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
	}
	if fallback != nil {
		fc.fallback = *fallback
		fc.hasFallback = true
	}
	return fc
}

// Connect dials the primary while the breaker is closed/half-open, or the
// fallback once it has tripped open. Reconnect backoff between attempts is
// the caller's responsibility (pkg/retry), not this type's.
func (fc *FailoverClient) Connect(ctx context.Context) error {
	endpoint := fc.primary
	usingFallback := false
	if fc.hasFallback && fc.breaker.GetState() == circuit.StateOpen {
		endpoint = fc.fallback
		usingFallback = true
	}

	client := NewClient(fc.logger, fc.readTimeout, fc.writeTimeout)
	err := fc.breaker.Execute(ctx, func() error {
		return client.Dial(ctx, endpoint)
	})
	if err != nil {
		if usingFallback {
			return err
		}
		if fc.hasFallback && fc.breaker.GetState() == circuit.StateOpen {
			fc.logger.Warn("primary pool breaker open, falling back", "fallback", fc.fallback.Addr)
			return fc.Connect(ctx)
		}
		return err
	}

	fc.Active = client
	fc.activeEndpoint = endpoint
	fc.logger.Info("connected to pool", "addr", endpoint.Addr, "fallback", usingFallback)
	return nil
}

// ActiveUser returns the worker username for whichever endpoint Connect
// most recently authorized against.
func (fc *FailoverClient) ActiveUser() string {
	return fc.activeEndpoint.User
}

// ActiveAddr returns the address of whichever endpoint Connect most
// recently authorized against.
func (fc *FailoverClient) ActiveAddr() string {
	return fc.activeEndpoint.Addr
}

// Close tears down the active connection, if any.
func (fc *FailoverClient) Close() error {
	if fc.Active == nil {
		return nil
	}
	return fc.Active.Close()
}
