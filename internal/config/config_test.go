package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHonorsHomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, home, cfg.HomeDir)
	assert.Equal(t, filepath.Join(home, "plans"), cfg.PlansDir)
	assert.Equal(t, filepath.Join(home, "tool_install_cache.json"), cfg.ProbeCachePath)
}

func TestEnsureDirsCreatesPlansDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	cfg, err := DefaultConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirs())

	assert.DirExists(t, cfg.PlansDir)
}

func TestGetWorkerBudget(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		check func(t *testing.T, got int)
	}{
		{"unset uses default", "", func(t *testing.T, got int) {
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, 4)
		}},
		{"valid value", "2", func(t *testing.T, got int) {
			assert.Equal(t, 2, got)
		}},
		{"invalid falls back", "banana", func(t *testing.T, got int) {
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, 4)
		}},
		{"zero falls back", "0", func(t *testing.T, got int) {
			assert.GreaterOrEqual(t, got, 1)
		}},
		{"too high clamps", "1000", func(t *testing.T, got int) {
			assert.Equal(t, 32, got)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvWorkers, tt.env)
			tt.check(t, GetWorkerBudget())
		})
	}
}

func TestGetStepTimeout(t *testing.T) {
	t.Setenv(EnvStepTimeout, "")
	assert.Equal(t, DefaultStepTimeout, GetStepTimeout())

	t.Setenv(EnvStepTimeout, "90s")
	assert.Equal(t, 90*time.Second, GetStepTimeout())

	t.Setenv(EnvStepTimeout, "1ms")
	assert.Equal(t, 1*time.Second, GetStepTimeout(), "below minimum clamps up")

	t.Setenv(EnvStepTimeout, "100h")
	assert.Equal(t, 1*time.Hour, GetStepTimeout(), "above maximum clamps down")

	t.Setenv(EnvStepTimeout, "not-a-duration")
	assert.Equal(t, DefaultStepTimeout, GetStepTimeout())
}

func TestGetPlanTimeoutDefault(t *testing.T) {
	t.Setenv(EnvPlanTimeout, "")
	assert.Equal(t, DefaultPlanTimeout, GetPlanTimeout())
}
