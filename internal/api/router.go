package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/scout/backend/internal/api/handlers"
	"github.com/wonny/scout/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router. schedulerHandler may be nil.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(engineHandler *handlers.EngineHandler, schedulerHandler *handlers.SchedulerHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Engine endpoints
	api.HandleFunc("/regime", engineHandler.GetRegime).Methods("GET")
	api.HandleFunc("/weights/latest", engineHandler.GetLatestWeights).Methods("GET")
	api.HandleFunc("/weights", engineHandler.ListWeights).Methods("GET")
	api.HandleFunc("/weights/{id}/performance", engineHandler.GetPerformance).Methods("GET")
	api.HandleFunc("/evaluate", engineHandler.Evaluate).Methods("POST")

	// Scheduler endpoints
	if schedulerHandler != nil {
		api.HandleFunc("/scheduler/jobs", schedulerHandler.GetJobs).Methods("GET")
		api.HandleFunc("/scheduler/jobs/{name}/run", schedulerHandler.RunJob).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "scout-engine",
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
