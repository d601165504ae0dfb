package scheduler

import (
	"testing"

	"gearlend-backend/internal/config"
	"gearlend-backend/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_RegistersJobs(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		PollPendingIntents:    "0 */5 * * * *",
		ExpireStaleIntents:    "0 0 * * * *",
		RetryNotifications:    "30 * * * * *",
		CloseReturnedBookings: "0 0 1 * * *",
	}}
	s, err := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	require.NoError(t, err)

	assert.True(t, s.IsRunning())
	assert.Len(t, s.cron.Entries(), 4)

	s.Start()
	s.Stop()
}

func TestNewScheduler_BadSpec(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		PollPendingIntents:    "every five minutes",
		ExpireStaleIntents:    "0 0 * * * *",
		RetryNotifications:    "30 * * * * *",
		CloseReturnedBookings: "0 0 1 * * *",
	}}
	_, err := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobs.JobPollPendingIntents)
}
