package batch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/calibration"
	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/internal/testutil"
	"github.com/wonny/scout/backend/pkg/logger"
)

type recordingCollector struct {
	mu    sync.Mutex
	calls map[Step]int
	fail  map[Step]bool
}

func (c *recordingCollector) Collect(ctx context.Context, step Step, days int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[Step]int)
	}
	c.calls[step] = days
	if c.fail[step] {
		return errors.New("collector unavailable")
	}
	return nil
}

func newRunner(col Collector, m contracts.MarketDataProvider, store *testutil.WeightStore) *Runner {
	r := NewRunner(Dependencies{
		Collector:   col,
		Market:      m,
		Calibrator:  calibration.NewCalibrator(calibration.DefaultConfig(), store, store, logger.Nop()),
		Policy:      strategyconfig.Default(),
		IndexCode:   "KOSPI200",
		Workers:     4,
		StepTimeout: time.Minute,
	}, logger.Nop())
	r.now = func() time.Time { return testutil.Date(2023, 11, 1) }
	return r
}

func syntheticMarket(stocks int) *testutil.Market {
	m := testutil.NewMarket()
	for _, h := range testutil.SyntheticUniverse(stocks, 300) {
		m.AddHistory(h, 2e12)
	}
	m.AddIndex("KOSPI200", testutil.TrendBars(testutil.Date(2023, 10, 31), 200, 300, -0.5))
	return m
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in      string
		want    Step
		wantErr bool
	}{
		{"news", StepNews, false},
		{" Analysis ", StepAnalysis, false},
		{"financials", StepFinancials, false},
		{"prices", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStep(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []Step
	}{
		{"all", Options{}, []Step{StepNews, StepTag, StepDart, StepTrading, StepFinancials, StepAnalysis}},
		{"analysis only", Options{AnalysisOnly: true, Steps: []Step{StepNews}}, []Step{StepAnalysis}},
		{"table order", Options{Steps: []Step{StepAnalysis, StepNews, StepNews}}, []Step{StepNews, StepAnalysis}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.opts))
		})
	}
}

func TestRunner_Weekly(t *testing.T) {
	col := &recordingCollector{}
	store := &testutil.WeightStore{}
	r := newRunner(col, syntheticMarket(25), store)

	report, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "weekly", report.Mode)
	assert.True(t, report.Succeeded(), "failed: %v", report.FailedSteps())

	assert.Equal(t, map[Step]int{StepNews: 7, StepTag: 37, StepDart: 7, StepTrading: 7}, col.calls)

	require.Len(t, report.Results, 6)
	fin := report.Results[4]
	assert.Equal(t, StepFinancials, fin.Step)
	assert.True(t, fin.Skipped)

	analysis := report.Results[5]
	assert.Equal(t, StepAnalysis, analysis.Step)
	assert.Equal(t, 730, analysis.Days)

	require.NotNil(t, report.Generation)
	require.NotNil(t, report.Regime)
	assert.Equal(t, contracts.RegimeBear, report.Regime.Label)
	assert.Equal(t, contracts.RegimeBear, report.Generation.Regime)

	latest, err := store.LatestGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Generation.ID, latest.ID)
}

func TestRunner_FullRefresh(t *testing.T) {
	col := &recordingCollector{}
	r := newRunner(col, syntheticMarket(25), &testutil.WeightStore{})

	report, err := r.Run(context.Background(), Options{FullRefresh: true, Steps: []Step{StepTag, StepFinancials}})
	require.NoError(t, err)
	assert.Equal(t, "full", report.Mode)
	assert.True(t, report.Succeeded())
	assert.Equal(t, map[Step]int{StepTag: 760, StepFinancials: 730}, col.calls)
}

func TestRunner_StepFailureContinues(t *testing.T) {
	col := &recordingCollector{fail: map[Step]bool{StepDart: true}}
	r := newRunner(col, syntheticMarket(25), &testutil.WeightStore{})

	report, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, report.Succeeded())
	assert.Equal(t, []Step{StepDart}, report.FailedSteps())
	assert.Contains(t, col.calls, StepTrading)
	assert.NotNil(t, report.Generation)
}

func TestRunner_CalibrationFailureKeepsPrevious(t *testing.T) {
	previous := &contracts.WeightGeneration{ID: "previous", ComputedAt: testutil.Date(2023, 10, 25)}
	store := &testutil.WeightStore{Generations: []*contracts.WeightGeneration{previous}}
	r := newRunner(nil, syntheticMarket(5), store)

	report, err := r.Run(context.Background(), Options{AnalysisOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "analysis-only", report.Mode)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, "calibration error [sample]")
	assert.Nil(t, report.Generation)

	latest, err := store.LatestGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "previous", latest.ID)
}

func TestRunner_NoCollector(t *testing.T) {
	r := newRunner(nil, syntheticMarket(25), &testutil.WeightStore{})
	report, err := r.Run(context.Background(), Options{Steps: []Step{StepNews}})
	require.NoError(t, err)
	assert.False(t, report.Succeeded())
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(&recordingCollector{}, syntheticMarket(25), &testutil.WeightStore{})
	_, err := r.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CollectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/collect/news":
			assert.Equal(t, 7, req.Days)
			_ = json.NewEncoder(w).Encode(CollectResponse{Success: true, Records: 120})
		case "/collect/dart":
			_ = json.NewEncoder(w).Encode(CollectResponse{Success: false, Message: "DART quota exceeded"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPCollector(srv.URL+"/", 5*time.Second, logger.Nop())

	require.NoError(t, c.Collect(context.Background(), StepNews, 7))

	err := c.Collect(context.Background(), StepDart, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DART quota exceeded")

	assert.Error(t, c.Collect(context.Background(), StepTrading, 7))
}

func TestHTTPCollector_Health(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"status":"ok","version":"1.4.0"}`, false},
		{"degraded", http.StatusOK, `{"status":"degraded"}`, true},
		{"unavailable", http.StatusServiceUnavailable, `{"status":"down"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/health", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			h, err := NewHTTPCollector(srv.URL, time.Second, logger.Nop()).Health(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "1.4.0", h.Version)
		})
	}
}
