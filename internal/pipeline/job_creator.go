package pipeline

import (
	"context"
	"time"

	"github.com/bardlex/bitaxefw/internal/jobbuilder"
	"github.com/bardlex/bitaxefw/internal/stratum"
)

// jobCreator drains notify_queue and builds ASIC jobs via jobbuilder.Build
// at the configured cadence, regenerating extranonce_2 (and, when the
// subrange policy is active, starting_nonce) on every tick so the chain
// keeps receiving fresh search space between pool notifications. On
// clean_jobs it flushes whatever AsicSender hasn't yet consumed before
// publishing the fresh job, so stale work built against a superseded
// notification never reaches the chain.
func (o *Orchestrator) jobCreator(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.JobFrequency)
	defer ticker.Stop()

	var current stratum.MiningNotification
	var haveCurrent bool

	for {
		select {
		case <-ctx.Done():
			return

		case n := <-o.notifyQueue:
			current = n
			haveCurrent = true
			if n.CleanJobs {
				drainJobQueue(o.asicJobQueue)
			}
			o.buildAndEnqueue(current)

		case <-ticker.C:
			if haveCurrent {
				o.buildAndEnqueue(current)
			}
		}
	}
}

func (o *Orchestrator) buildAndEnqueue(n stratum.MiningNotification) {
	session := o.currentSession()
	if session.ExtraNonce1 == "" {
		return
	}

	counter := o.extraNonce2Counter.Add(1)
	job, jobCtx, err := jobbuilder.Build(n, session, counter, o.epoch.Load(), o.cfg.SubrangeSize)
	if err != nil {
		o.logger.WithError(err).Warn("failed to build job from notification", "job_id", n.JobID)
		return
	}

	dispatch := jobDispatch{job: job, ctx: jobCtx, freshNotification: n.CleanJobs}
	select {
	case o.asicJobQueue <- dispatch:
	default:
		o.logger.Warn("asic job queue full, dropping job", "job_id", n.JobID)
	}
}

func drainJobQueue(q chan jobDispatch) {
	for {
		select {
		case <-q:
		default:
			return
		}
	}
}
