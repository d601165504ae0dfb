package jobs

import (
	"context"
	"sort"
	"time"

	"gearlend-backend/internal/config"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/service"
)

const (
	JobPollPendingIntents    = "poll-pending-intents"
	JobExpireStaleIntents    = "expire-stale-intents"
	JobRetryNotifications    = "retry-notifications"
	JobCloseReturnedBookings = "close-returned-bookings"
	JobAll                   = "all"
)

// defaultJobTimeout bounds one job run; a sweep that does not finish picks up
// where it left off on the next tick.
const defaultJobTimeout = 5 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	timeout  time.Duration
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Reconcile     service.ReconciliationService
	Notifications service.NotificationService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		timeout:  defaultJobTimeout,
	}
}

// Config exposes the configuration the scheduler reads cron specs from.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) batchSize() int {
	if jr.config.Scheduler.BatchSize > 0 {
		return jr.config.Scheduler.BatchSize
	}
	return 100
}

// runWithRecovery wraps job execution with panic recovery and a timeout. It
// returns how many records the job handled.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) (int, error)) (n int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	n, err := jobFunc(ctx)
	if err != nil {
		logger.Error("Job failed", "job", jobName, "processed", n, "error", err)
		return n
	}
	logger.Info("Job completed", "job", jobName, "processed", n, "duration_ms", time.Since(start).Milliseconds())
	return n
}

// Jobs maps job names to their entry points, as used by -run-once.
func (jr *JobRunner) Jobs() map[string]func() {
	return map[string]func(){
		JobPollPendingIntents:    jr.PollPendingIntents,
		JobExpireStaleIntents:    jr.ExpireStaleIntents,
		JobRetryNotifications:    jr.RetryNotifications,
		JobCloseReturnedBookings: jr.CloseReturnedBookings,
		JobAll:                   jr.RunAll,
	}
}

// JobNames lists the runnable jobs in a stable order.
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, 5)
	for name := range jr.Jobs() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll runs every job once (for manual execution). Expiry runs before the
// poll so a stale intent gets its final status check there.
func (jr *JobRunner) RunAll() {
	jr.ExpireStaleIntents()
	jr.PollPendingIntents()
	jr.CloseReturnedBookings()
	jr.RetryNotifications()
}
