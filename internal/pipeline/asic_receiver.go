package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/bardlex/bitaxefw/internal/asic"
	"github.com/bardlex/bitaxefw/internal/events"
	"github.com/bardlex/bitaxefw/internal/jobbuilder"
)

// asicReceiver polls the chain for result frames, discards anything from an
// abandoned epoch, re-verifies the survivors at pool difficulty, submits
// qualifying shares upstream, and tracks best-ever difficulty in the
// settings store.
func (o *Orchestrator) asicReceiver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := o.driver.ReceiveWork(ctx)
		if err != nil {
			o.logger.WithError(err).Warn("error reading asic result")
			continue
		}
		if result == nil {
			if o.driver.ConsecutiveTimeouts() == asic.TimeoutThreshold {
				o.bus.Publish(events.PipelineEvent{
					Type:                events.TypeAsicNotResponding,
					ConsecutiveTimeouts: o.driver.ConsecutiveTimeouts(),
				})
			}
			continue
		}

		if result.Context.Epoch < o.epoch.Load() {
			continue
		}

		o.handleResult(result)
	}
}

func (o *Orchestrator) handleResult(result *asic.Result) {
	diff := jobbuilder.TestNonce(result.Context, result.Nonce, result.RolledVersion)

	o.mu.Lock()
	if diff > o.bestSessionDiff {
		o.bestSessionDiff = diff
	}
	o.mu.Unlock()

	if err := o.store.SetBestDifficulty(uint64(diff)); err != nil {
		o.logger.WithError(err).Warn("failed to persist best difficulty")
	}

	if diff >= jobbuilder.NetworkDifficulty(result.Context.NBits) {
		o.bus.Publish(events.PipelineEvent{Type: events.TypeBlockFound, Difficulty: diff})
		o.logger.LogBlockFound("", result.Context.NotificationJobID, diff)
	}

	if diff < result.Context.PoolDifficulty {
		return
	}

	client := o.pool.Active
	if client == nil {
		return
	}

	nTimeHex := fmt.Sprintf("%08x", result.Context.NTime)
	nonceHex := fmt.Sprintf("%08x", result.Nonce)
	versionHex := fmt.Sprintf("%08x", result.RolledVersion)
	extraNonce2Hex := hex.EncodeToString(result.Context.ExtraNonce2)

	accepted, reason, err := client.SubmitShare(o.pool.ActiveUser(), result.Context.NotificationJobID, extraNonce2Hex, nTimeHex, nonceHex, versionHex)
	if err != nil {
		o.logger.WithError(err).Warn("failed to submit share")
		return
	}

	o.logger.LogShareSubmission(result.Context.NotificationJobID, diff, submitStatus(accepted))
	o.bus.Publish(events.PipelineEvent{
		Type:       events.TypeShareSubmitted,
		Accepted:   accepted,
		Difficulty: diff,
		Reason:     reason,
	})
}

func submitStatus(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}
