package jobs

import (
	"context"
)

// RetryNotifications re-sends failed notifications whose backoff elapsed and
// idle ones that missed their post-commit dispatch.
func (jr *JobRunner) RetryNotifications() {
	jr.runWithRecovery("RetryNotifications", func(ctx context.Context) (int, error) {
		return jr.services.Notifications.RetryNotifications(ctx, jr.batchSize())
	})
}
