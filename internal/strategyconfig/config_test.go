package strategyconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
)

func TestLoad(t *testing.T) {
	path := "../../config/policy/scout_v1.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("policy file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)

	assert.Equal(t, "scout_v1", cfg.Meta.PolicyID)
	assert.Equal(t, "B", cfg.Gate.MinGrade)
	assert.Equal(t, 80, cfg.Gate.MinConfidence)
	assert.Equal(t, 90*time.Second, cfg.Debate.PersonaTimeout)
	assert.Equal(t, []int{5, 10, 20}, cfg.Calibration.Horizons)

	// 파일 정책과 내장 기본값은 동일해야 함
	fileHash, err := Hash(cfg)
	require.NoError(t, err)
	defHash, err := Hash(Default())
	require.NoError(t, err)
	assert.Equal(t, defHash, fileHash)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestParse_UnknownFieldFails(t *testing.T) {
	_, err := Parse([]byte("meta:\n  policy_id: x\ngate:\n  min_grdae: A\n"))
	assert.Error(t, err)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("meta:\n  policy_id: custom\ngate:\n  mode: shadow\n"))
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Meta.PolicyID)
	assert.Equal(t, "shadow", cfg.Gate.Mode)
	assert.Equal(t, 80, cfg.Gate.MinConfidence)
	assert.Equal(t, TiePolicyConservative, cfg.Debate.TiePolicy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing policy id", func(c *Config) { c.Meta.PolicyID = "" }, "meta.policy_id"},
		{"bad mode", func(c *Config) { c.Gate.Mode = "strict" }, "gate.mode"},
		{"bad grade", func(c *Config) { c.Gate.MinGrade = "X" }, "gate.min_grade"},
		{"confidence over 100", func(c *Config) { c.Gate.MinConfidence = 101 }, "gate.min_confidence"},
		{"looser bucket confidence", func(c *Config) {
			c.Gate.BucketOverrides["SMALL"] = BucketOverride{MinConfidence: 60}
		}, "gate.bucket_overrides.SMALL.min_confidence"},
		{"looser bucket grade", func(c *Config) {
			c.Gate.BucketOverrides["MID"] = BucketOverride{MinGrade: "C"}
		}, "gate.bucket_overrides.MID.min_grade"},
		{"unknown bucket", func(c *Config) {
			c.Gate.BucketOverrides["MEGA"] = BucketOverride{MinConfidence: 90}
		}, "gate.bucket_overrides.MEGA"},
		{"bad tie policy", func(c *Config) { c.Debate.TiePolicy = "coin_flip" }, "debate.tie_policy"},
		{"zero persona timeout", func(c *Config) { c.Debate.PersonaTimeout = 0 }, "debate.persona_timeout"},
		{"regime lines inverted", func(c *Config) { c.Regime.BearLine = 0.1 }, "regime"},
		{"empty horizons", func(c *Config) { c.Calibration.Horizons = nil }, "calibration.horizons"},
		{"blend out of range", func(c *Config) { c.Calibration.Blend = 1.5 }, "calibration.blend"},
		{"weekly over full", func(c *Config) { c.Batch.WeeklyDays = 1000 }, "batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestGate_Thresholds(t *testing.T) {
	g := Default().Gate

	large := g.Thresholds(contracts.BucketLarge)
	assert.Equal(t, contracts.GradeB, large.MinGrade)
	assert.Equal(t, 80, large.MinConfidence)

	small := g.Thresholds(contracts.BucketSmall)
	assert.Equal(t, contracts.GradeB, small.MinGrade)
	assert.Equal(t, 85, small.MinConfidence)

	g.BucketOverrides["MID"] = BucketOverride{MinGrade: "A"}
	mid := g.Thresholds(contracts.BucketMid)
	assert.Equal(t, contracts.GradeA, mid.MinGrade)
	assert.Equal(t, 80, mid.MinConfidence)
}

func TestHash_Deterministic(t *testing.T) {
	a, err := Hash(Default())
	require.NoError(t, err)
	b, err := Hash(Default())
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	changed := Default()
	changed.Gate.MinConfidence = 81
	c, err := Hash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, source, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", source)
	assert.Equal(t, "scout_v1", cfg.Meta.PolicyID)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate:\n  mode: loud\n"), 0o644))
	_, _, err = LoadOrDefault(path)
	assert.Error(t, err)
}

func TestCalibrationConfig(t *testing.T) {
	cc := Default().Calibration.CalibrationConfig()
	assert.Equal(t, 90*24*time.Hour, cc.RecentWindow)
	assert.Equal(t, 1.96, cc.TCritical)

	d := Default().Regime.Detector()
	assert.Equal(t, 120, d.LookbackBars)
}

func TestWarn(t *testing.T) {
	assert.Empty(t, Warn(Default()))

	cfg := Default()
	cfg.Gate.Mode = "off"
	cfg.Gate.MinConfidence = 50
	codes := []string{}
	for _, w := range Warn(cfg) {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{"GATE_OFF", "LOW_MIN_CONFIDENCE"}, codes)
}
