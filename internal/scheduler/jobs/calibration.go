package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/scout/backend/internal/batch"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultCalibrationSchedule is Sunday 06:00 (with seconds)
const DefaultCalibrationSchedule = "0 0 6 * * 0"

// CalibrationJob runs the weekly calibration batch
// ⭐ SSOT: 주간 가중치 재계산 스케줄은 이 Job에서만
type CalibrationJob struct {
	runner   *batch.Runner
	schedule string
	logger   *logger.Logger
}

// NewCalibrationJob creates a new calibration job. An empty schedule uses the default.
func NewCalibrationJob(runner *batch.Runner, schedule string, log *logger.Logger) *CalibrationJob {
	if schedule == "" {
		schedule = DefaultCalibrationSchedule
	}
	return &CalibrationJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CalibrationJob) Name() string {
	return "weekly_calibration"
}

// Schedule returns the cron schedule
func (j *CalibrationJob) Schedule() string {
	return j.schedule
}

// Run executes the batch in weekly mode. Any failed step fails the job so that
// it shows up in the history; a failed analysis keeps the previous generation.
func (j *CalibrationJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled calibration batch")

	report, err := j.runner.Run(ctx, batch.Options{})
	if err != nil {
		return fmt.Errorf("calibration batch: %w", err)
	}
	if !report.Succeeded() {
		return fmt.Errorf("calibration batch steps failed: %v", report.FailedSteps())
	}

	if report.Generation != nil {
		j.logger.WithField("generation_id", report.Generation.ID).Info("Scheduled calibration completed successfully")
	}
	return nil
}
