// Package pipeline wires the Stratum client, ASIC driver, settings store,
// and events bus into the four cooperating tasks that make up the mining
// loop: read pool pushes, build chip-ready jobs, dispatch them to the
// chain, and harvest results back into submittable shares.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/bitaxefw/internal/asic"
	"github.com/bardlex/bitaxefw/internal/events"
	"github.com/bardlex/bitaxefw/internal/jobbuilder"
	"github.com/bardlex/bitaxefw/internal/settings"
	"github.com/bardlex/bitaxefw/internal/stratum"
	"github.com/bardlex/bitaxefw/pkg/log"
)

// reconnectDelay is how long StratumReader waits before starting a fresh
// pkg/retry backoff cycle once that cycle's own attempts are exhausted.
const reconnectDelay = 5 * time.Second

// Config is the tuning the Orchestrator needs beyond its collaborators.
type Config struct {
	JobFrequency     time.Duration
	NotifyQueueSize  int
	AsicJobQueueSize int
	SubrangeSize     uint32
}

// jobDispatch pairs a built job with the registry context AsicSender must
// install before transmitting it, plus whether it descends from a
// clean_jobs notification (for logging only).
type jobDispatch struct {
	job               *asic.Job
	ctx               asic.JobContext
	freshNotification bool
}

// Orchestrator runs the four-task mining loop against one ASIC chain and
// one pool connection (with its own primary/fallback failover).
type Orchestrator struct {
	pool   *stratum.FailoverClient
	driver *asic.Driver
	store  *settings.Store
	bus    *events.Bus
	logger *log.Logger
	cfg    Config

	notifyQueue  chan stratum.MiningNotification
	asicJobQueue chan jobDispatch

	extraNonce2Counter atomic.Uint32
	epoch              atomic.Uint64

	mu              sync.Mutex
	session         jobbuilder.SessionParams
	bestSessionDiff float64
	startedAt       time.Time
}

// New constructs an Orchestrator. The pool, driver, store, and bus must
// already be ready to use (dialed/opened/bound is the caller's job; Run
// only drives the ongoing loop).
func New(pool *stratum.FailoverClient, driver *asic.Driver, store *settings.Store, bus *events.Bus, logger *log.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		pool:         pool,
		driver:       driver,
		store:        store,
		bus:          bus,
		logger:       logger.WithComponent("pipeline"),
		cfg:          cfg,
		notifyQueue:  make(chan stratum.MiningNotification, cfg.NotifyQueueSize),
		asicJobQueue: make(chan jobDispatch, cfg.AsicJobQueueSize),
	}
}

// Run starts the four tasks and blocks until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); o.stratumReader(ctx) }()
	go func() { defer wg.Done(); o.jobCreator(ctx) }()
	go func() { defer wg.Done(); o.asicSender(ctx) }()
	go func() { defer wg.Done(); o.asicReceiver(ctx) }()
	wg.Wait()

	return ctx.Err()
}

// BestSessionDifficulty returns the highest share difficulty seen since Run
// started.
func (o *Orchestrator) BestSessionDifficulty() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bestSessionDiff
}

func (o *Orchestrator) currentSession() jobbuilder.SessionParams {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

func (o *Orchestrator) refreshSession() {
	client := o.pool.Active
	if client == nil {
		return
	}
	o.mu.Lock()
	o.session = jobbuilder.SessionParams{
		ExtraNonce1:     client.ExtraNonce1(),
		ExtraNonce2Size: client.ExtraNonce2Size(),
		VersionMask:     client.VersionMask(),
		Difficulty:      client.Difficulty(),
	}
	o.mu.Unlock()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
