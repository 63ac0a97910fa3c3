package timescheduler_test

import (
	"testing"
	"time"

	timescheduler "github.com/13x54n/multiverse/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	svc := timescheduler.NewScheduler()
	svc.Start()
	defer svc.Stop()

	require.True(t, svc.AfterNow(svc.AddNow(10)))
	require.False(t, svc.AfterNow(svc.AddNow(-10)))

	err := svc.ScheduleTaskOnce(time.Now().Add(-time.Minute).Unix(), func() {})
	require.Error(t, err)

	done := make(chan struct{}, 2)
	require.NoError(t, svc.ScheduleTaskOnce(svc.AddNow(1), func() { done <- struct{}{} }))
	require.NoError(t, svc.ScheduleTaskOnce(svc.AddNow(2), func() { done <- struct{}{} }))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduled task did not run")
		}
	}
}
