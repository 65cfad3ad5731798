package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/scout/backend/internal/scheduler"
	"github.com/wonny/scout/backend/pkg/logger"
)

// SchedulerHandler exposes job statistics
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s, logger: log}
}

// GetJobs returns per-job statistics
// GET /api/scheduler/jobs
func (h *SchedulerHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}

// RunJob triggers a job outside its schedule
// POST /api/scheduler/jobs/{name}/run
func (h *SchedulerHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.scheduler.RunJob(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.WithField("job", name).Info("Job triggered via API")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    name,
	})
}
