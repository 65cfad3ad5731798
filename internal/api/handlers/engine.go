package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/scout/backend/internal/brain"
	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/factors"
	"github.com/wonny/scout/backend/pkg/logger"
)

// MaxEvaluateCodes caps one synchronous evaluation request
const MaxEvaluateCodes = 50

// EngineHandler serves regime, weights and dry-run evaluation
// ⭐ SSOT: 엔진 API 핸들러는 이 구조체에서만
type EngineHandler struct {
	evaluator *brain.Evaluator
	weights   *factors.WeightSource
	store     contracts.WeightStore
	perf      contracts.PerformanceStore // nil이면 성과 조회 비활성
	maxAge    time.Duration
	logger    *logger.Logger
}

// NewEngineHandler creates a new engine handler
func NewEngineHandler(
	evaluator *brain.Evaluator,
	weights *factors.WeightSource,
	store contracts.WeightStore,
	perf contracts.PerformanceStore,
	maxAge time.Duration,
	log *logger.Logger,
) *EngineHandler {
	return &EngineHandler{
		evaluator: evaluator,
		weights:   weights,
		store:     store,
		perf:      perf,
		maxAge:    maxAge,
		logger:    log,
	}
}

// GetRegime returns the current market regime
// GET /api/regime
func (h *EngineHandler) GetRegime(w http.ResponseWriter, r *http.Request) {
	state := h.evaluator.DetectRegime(r.Context(), time.Now())
	respondJSON(w, http.StatusOK, state)
}

// WeightsResponse is the active generation plus freshness
type WeightsResponse struct {
	Generation *contracts.WeightGeneration `json:"generation"`
	Stale      bool                        `json:"stale"`
	Age        string                      `json:"age,omitempty"`
}

// GetLatestWeights returns the active weight generation
// GET /api/weights/latest
func (h *EngineHandler) GetLatestWeights(w http.ResponseWriter, r *http.Request) {
	gen, err := h.weights.Refresh(r.Context())
	if err != nil {
		// 캐시된 세대로 응답
		h.logger.WithError(err).Warn("Failed to refresh weights")
	}

	now := time.Now()
	resp := WeightsResponse{
		Generation: gen,
		Stale:      h.weights.Stale(now, h.maxAge),
	}
	if gen.ID != factors.DefaultGenerationID {
		resp.Age = gen.Age(now).Round(time.Second).String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListWeights returns recent generations, newest first
// GET /api/weights?limit=20
func (h *EngineHandler) ListWeights(w http.ResponseWriter, r *http.Request) {
	gens, err := h.store.ListGenerations(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list generations")
		respondError(w, http.StatusInternalServerError, "Failed to list weight generations")
		return
	}
	if gens == nil {
		gens = []*contracts.WeightGeneration{}
	}
	respondJSON(w, http.StatusOK, gens)
}

// GetPerformance returns the performance records of one generation
// GET /api/weights/{id}/performance
func (h *EngineHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if h.perf == nil {
		respondError(w, http.StatusNotImplemented, "Performance store not configured")
		return
	}

	id := mux.Vars(r)["id"]
	records, err := h.perf.ListPerformance(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("generation_id", id).Error("Failed to list performance")
		respondError(w, http.StatusInternalServerError, "Failed to list performance records")
		return
	}
	if records == nil {
		records = []contracts.FactorPerformance{}
	}
	respondJSON(w, http.StatusOK, records)
}

// EvaluateRequest is a dry-run evaluation request
type EvaluateRequest struct {
	Codes  []string `json:"codes"`
	Debate bool     `json:"debate"`
}

// Evaluate runs the evaluator for the given codes. Nothing is handed off.
// POST /api/evaluate
func (h *EngineHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	codes := make([]string, 0, len(req.Codes))
	for _, c := range req.Codes {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	switch {
	case len(codes) == 0:
		respondError(w, http.StatusBadRequest, "codes is required")
		return
	case len(codes) > MaxEvaluateCodes:
		respondError(w, http.StatusBadRequest, "too many codes")
		return
	case req.Debate && !h.evaluator.DebateEnabled():
		respondError(w, http.StatusBadRequest, "debate is not enabled")
		return
	}

	result, err := h.evaluator.Run(r.Context(), brain.RunConfig{Codes: codes, Debate: req.Debate})
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			respondError(w, http.StatusServiceUnavailable, "Evaluation cancelled")
			return
		}
		h.logger.WithError(err).Error("Evaluation failed")
		respondError(w, http.StatusInternalServerError, "Evaluation failed")
		return
	}
	brain.SortByQuantScore(result.Evaluations)
	respondJSON(w, http.StatusOK, result)
}
