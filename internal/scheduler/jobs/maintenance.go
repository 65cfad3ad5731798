package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/scout/backend/internal/factors"
	"github.com/wonny/scout/backend/pkg/logger"
)

// WeightRefreshJob reloads the active weight generation into the in-process cache
type WeightRefreshJob struct {
	weights *factors.WeightSource
	logger  *logger.Logger
}

// NewWeightRefreshJob creates a new weight refresh job
func NewWeightRefreshJob(weights *factors.WeightSource, log *logger.Logger) *WeightRefreshJob {
	return &WeightRefreshJob{
		weights: weights,
		logger:  log,
	}
}

// Name returns the job name
func (j *WeightRefreshJob) Name() string {
	return "weight_refresh"
}

// Schedule returns the cron schedule (every 15 minutes)
func (j *WeightRefreshJob) Schedule() string {
	return "0 */15 * * * *"
}

// Run executes the refresh. On failure the cached generation stays in place.
func (j *WeightRefreshJob) Run(ctx context.Context) error {
	previous := j.weights.Current().ID

	gen, err := j.weights.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh weights: %w", err)
	}

	if gen.ID != previous {
		j.logger.WithFields(map[string]interface{}{
			"previous": previous,
			"current":  gen.ID,
		}).Info("Active weight generation changed")
	} else {
		j.logger.Debug("Weight generation unchanged")
	}
	return nil
}
