package pyroscope

import (
	"context"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileTypes(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Pyroscope.ProfileTypes = nil
	assert.Len(t, NewProfiler(cfg, logger.NewNopLogger()).profileTypes(), 6)

	cfg.Pyroscope.ProfileTypes = []string{"CPU", " goroutines", "bogus"}
	p := NewProfiler(cfg, logger.NewNopLogger())
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileGoroutines}, p.profileTypes())
}

func TestSettingsCarryAuth(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Pyroscope.ApplicationName = "ledgerline.api"
	cfg.Pyroscope.BasicAuthUser = "grafana"
	cfg.Pyroscope.BasicAuthPass = "secret"

	settings := NewProfiler(cfg, logger.NewNopLogger()).settings()
	assert.Equal(t, "ledgerline.api", settings.ApplicationName)
	assert.Equal(t, "grafana", settings.BasicAuthUser)
	assert.Equal(t, "secret", settings.BasicAuthPassword)
}

func TestDisabledProfilerStartsAndStops(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Pyroscope.Enabled = false
	p := NewProfiler(cfg, logger.NewNopLogger())

	require.NoError(t, p.Start(context.Background()))
	assert.Nil(t, p.session)
	require.NoError(t, p.Stop(context.Background()))
}
