package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCriticalVars(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/breakdown?sslmode=disable")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test_123")
}

func TestLoad_Defaults(t *testing.T) {
	setCriticalVars(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(3900), cfg.BreakdownPricePence)
	assert.Equal(t, "gbp", cfg.BreakdownCurrency)
	assert.Equal(t, "written_breakdown_paid", cfg.PaidEventsTopic)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_MissingCriticalVarInDevelopment(t *testing.T) {
	setCriticalVars(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
}

func TestLoad_ProductionSkipsCriticalCheck(t *testing.T) {
	// Production environments are configured by the platform; the startup
	// check only guards local development.
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
