package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "policy_chunks", cfg.QdrantCollection)
	assert.Equal(t, 2000, cfg.BusinessPlanCharLimit)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("DISABLE_POSITIONAL_CITATIONS", "true")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.IsProd())
	assert.True(t, cfg.DisablePositionalCitations)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := config.Config{}
	require.Error(t, cfg.Validate())
	cfg.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestBackoffConfigShortInTests(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	maxElapsed, _, _, _ := cfg.GetAIBackoffConfig()
	assert.Less(t, maxElapsed.Seconds(), 10.0)
}
