package jobs

import (
	"context"
	"time"
)

// PollPendingIntents asks the gateway for the status of intents that have
// been pending longer than payment.poll_after, covering delayed or lost
// webhooks.
func (jr *JobRunner) PollPendingIntents() {
	jr.runWithRecovery("PollPendingIntents", func(ctx context.Context) (int, error) {
		olderThan := jr.config.Payment.PollAfter()
		if olderThan <= 0 {
			olderThan = 10 * time.Minute
		}
		return jr.services.Reconcile.PollPendingIntents(ctx, olderThan, jr.batchSize())
	})
}

// ExpireStaleIntents expires intents still pending after payment.intent_expiry.
// Each gets one last status poll first.
func (jr *JobRunner) ExpireStaleIntents() {
	jr.runWithRecovery("ExpireStaleIntents", func(ctx context.Context) (int, error) {
		return jr.services.Reconcile.ExpireStaleIntents(ctx, jr.batchSize())
	})
}
