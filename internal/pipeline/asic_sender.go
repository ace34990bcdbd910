package pipeline

import "context"

// asicSender dequeues built jobs and dispatches them to the chain.
// Registry installation happens inside Driver.SendWork itself, keeping the
// install-then-transmit ordering the registry's invariant depends on in one
// place.
func (o *Orchestrator) asicSender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-o.asicJobQueue:
			o.driver.SendWork(d.job, d.ctx)
			o.logger.LogJobDistribution(d.ctx.NotificationJobID, d.freshNotification, o.driver.ChainLength())
		}
	}
}
