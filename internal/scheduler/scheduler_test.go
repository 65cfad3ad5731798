package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	failures int32 // 처음 N번 실패
	calls    int32
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if n <= atomic.LoadInt32(&j.failures) {
		return errors.New("transient failure")
	}
	return nil
}

func newScheduler(retries int) *Scheduler {
	return New(logger.Nop()).WithRetry(retries, time.Millisecond)
}

func TestScheduler_AddJob(t *testing.T) {
	s := newScheduler(0)

	require.NoError(t, s.AddJob(&stubJob{name: "b", schedule: "0 0 6 * * 0"}))
	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "@hourly"}))

	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "@hourly"}), "duplicate")
	assert.Error(t, s.AddJob(&stubJob{name: "c", schedule: "not a schedule"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestScheduler_RunJobSync(t *testing.T) {
	tests := []struct {
		name        string
		retries     int
		failures    int32
		wantSuccess bool
		wantCalls   int32
	}{
		{"first try", 2, 0, true, 1},
		{"recovers on retry", 2, 2, true, 3},
		{"exhausts retries", 1, 5, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(tt.retries)
			job := &stubJob{name: "job", schedule: "@daily", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunJobSync(context.Background(), "job")
			assert.Equal(t, tt.wantSuccess, err == nil)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&job.calls))
			assert.Equal(t, int(tt.wantCalls), result.Attempts)

			history, err := s.GetJobHistory("job")
			require.NoError(t, err)
			assert.Len(t, history.Results, 1)
		})
	}
}

func TestScheduler_RunJobSync_Unknown(t *testing.T) {
	_, err := newScheduler(0).RunJobSync(context.Background(), "missing")
	assert.Error(t, err)
}

func TestScheduler_GetJobStats(t *testing.T) {
	s := newScheduler(0)
	job := &stubJob{name: "job", schedule: "@daily", failures: 1}
	require.NoError(t, s.AddJob(job))

	_, err := s.RunJobSync(context.Background(), "job")
	require.Error(t, err)
	_, err = s.RunJobSync(context.Background(), "job")
	require.NoError(t, err)

	stats := s.GetJobStats()["job"]
	assert.Equal(t, "@daily", stats.Schedule)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.NotNil(t, stats.LastSuccess)
	assert.Equal(t, "transient failure", stats.LastError)
	assert.False(t, stats.Running)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < 120; i++ {
		h.AddResult(JobResult{JobName: "job", Success: i%4 != 0})
	}

	assert.Len(t, h.Results, 100, "history is capped")
	assert.Len(t, h.GetLatestResults(10), 10)
	assert.Len(t, h.GetFailedResults(), 25)
	assert.InDelta(t, 0.75, h.GetSuccessRate(), 1e-9)
}

func TestJobHistory_SkippedRuns(t *testing.T) {
	h := &JobHistory{}
	h.AddResult(JobResult{JobName: "job", Success: true})
	h.AddResult(JobResult{JobName: "job", Skipped: true, Error: "already running"})
	h.AddResult(JobResult{JobName: "job", Error: "boom"})

	assert.Equal(t, 2, h.Executed())
	assert.Len(t, h.GetFailedResults(), 1)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)

	last, ok := h.LastWhere(func(r JobResult) bool { return r.Success })
	require.True(t, ok)
	assert.True(t, last.Success)

	_, ok = (&JobHistory{}).LastWhere(func(JobResult) bool { return true })
	assert.False(t, ok)
}
