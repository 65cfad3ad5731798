package scheduler

import (
	"context"
	"time"
)

// historyLimit caps the results kept per job
const historyLimit = 100

// Job is a unit of scheduled engine work (calibration batch, weight refresh)
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes the job. A returned error is retried per the scheduler's policy.
	Run(ctx context.Context) error

	// Schedule returns a six-field cron expression (seconds first),
	// e.g. "0 0 6 * * 0" for Sunday 06:00
	Schedule() string
}

// JobResult is one execution, including its retries
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // 이전 실행이 아직 진행 중
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the latest results of one job, oldest first
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest past historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// GetLatestResults returns the latest n results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns failed runs. Skipped runs are not failures.
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, r := range h.Results {
		if !r.Success && !r.Skipped {
			failed = append(failed, r)
		}
	}
	return failed
}

// Executed counts runs that actually executed
func (h *JobHistory) Executed() int {
	n := 0
	for _, r := range h.Results {
		if !r.Skipped {
			n++
		}
	}
	return n
}

// GetSuccessRate returns successes over executed runs (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	executed := h.Executed()
	if executed == 0 {
		return 0.0
	}
	return float64(executed-len(h.GetFailedResults())) / float64(executed)
}

// LastWhere returns the most recent result matching keep
func (h *JobHistory) LastWhere(keep func(JobResult) bool) (JobResult, bool) {
	for i := len(h.Results) - 1; i >= 0; i-- {
		if keep(h.Results[i]) {
			return h.Results[i], true
		}
	}
	return JobResult{}, false
}
