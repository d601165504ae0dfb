package jobs

import (
	"context"
)

// CloseReturnedBookings completes ongoing bookings whose return date has
// passed without the owner closing them.
func (jr *JobRunner) CloseReturnedBookings() {
	jr.runWithRecovery("CloseReturnedBookings", func(ctx context.Context) (int, error) {
		return jr.services.Reconcile.CloseReturnedBookings(ctx, jr.batchSize())
	})
}
