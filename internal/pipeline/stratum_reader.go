package pipeline

import (
	"context"

	"github.com/hako/durafmt"

	"github.com/bardlex/bitaxefw/internal/events"
	"github.com/bardlex/bitaxefw/internal/stratum"
	"github.com/bardlex/bitaxefw/pkg/errors"
	"github.com/bardlex/bitaxefw/pkg/retry"
)

// stratumReader owns the active pool connection: it dials (with
// primary/fallback failover already handled inside pool), refreshes the
// cached SessionParams on every push, and feeds notify_queue. Every
// (re)connect bumps epoch so jobs built against the old connection's
// session parameters are abandoned rather than silently resubmitted against
// the new one.
func (o *Orchestrator) stratumReader(ctx context.Context) {
	previousAddr := ""
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := retry.Do(ctx, retry.NetworkConfig(), func() error { return o.pool.Connect(ctx) }); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.IsType(err, errors.ErrorTypeStratumAuthFailed) {
				o.logger.WithError(err).Error("pool rejected credentials, stopping the stratum reader")
				return
			}
			delay := durafmt.Parse(reconnectDelay).String()
			o.logger.WithError(err).Error("exhausted connect retries, backing off before trying again", "retry_in", delay)
			if !sleepOrDone(ctx, reconnectDelay) {
				return
			}
			continue
		}

		o.epoch.Add(1)
		o.refreshSession()

		addr := o.pool.ActiveAddr()
		if previousAddr != "" && previousAddr != addr {
			o.bus.Publish(events.PipelineEvent{Type: events.TypePoolFailover, From: previousAddr, To: addr})
		}
		previousAddr = addr

		client := o.pool.Active
		go client.Run(ctx)

		o.readLoop(ctx, client)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// readLoop pumps one connected client's notifications until it disconnects
// or ctx is canceled. set_difficulty pushes never reach this loop: the client
// applies them to its session, and refreshSession picks them up on the next
// notification.
func (o *Orchestrator) readLoop(ctx context.Context, client *stratum.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Disconnected:
			o.logger.WithError(err).Warn("stratum session disconnected, reconnecting")
			return
		case n := <-client.Notifications:
			o.refreshSession()
			if n.CleanJobs {
				o.epoch.Add(1)
			}
			pushNotify(o.notifyQueue, n)
		}
	}
}

// pushNotify enqueues n. A clean_jobs notification supersedes everything
// already queued, so the queue is drained first; an ordinary notification
// that finds the queue full is simply dropped — the next push supersedes it
// soon enough that blocking the reader to make room isn't worth it.
func pushNotify(queue chan stratum.MiningNotification, n stratum.MiningNotification) {
	if n.CleanJobs {
		for {
			select {
			case <-queue:
			default:
				goto drained
			}
		}
	drained:
	}
	select {
	case queue <- n:
	default:
	}
}
