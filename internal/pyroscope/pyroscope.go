package pyroscope

import (
	"context"
	"strings"

	"github.com/grafana/pyroscope-go"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/logger"
	"go.uber.org/fx"
)

// profileTypes maps the names accepted in pyroscope.profile_types
var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

var defaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileGoroutines,
}

// Profiler owns the continuous profiling session of one server process
type Profiler struct {
	cfg     config.PyroscopeConfig
	logger  *logger.Logger
	session *pyroscope.Profiler
}

func NewProfiler(cfg *config.Configuration, logger *logger.Logger) *Profiler {
	return &Profiler{cfg: cfg.Pyroscope, logger: logger}
}

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewProfiler),
		fx.Invoke(func(lc fx.Lifecycle, p *Profiler) {
			lc.Append(fx.Hook{OnStart: p.Start, OnStop: p.Stop})
		}),
	)
}

// Start begins uploading profiles. It is a no-op when profiling is off.
func (p *Profiler) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		p.logger.Debug("pyroscope profiling is disabled")
		return nil
	}

	settings := p.settings()
	session, err := pyroscope.Start(settings)
	if err != nil {
		p.logger.Errorw("failed to start pyroscope", "error", err)
		return err
	}
	p.session = session

	p.logger.Infow("pyroscope profiling started",
		"server_address", settings.ServerAddress,
		"application_name", settings.ApplicationName,
		"profile_types", settings.ProfileTypes,
	)
	return nil
}

func (p *Profiler) Stop(ctx context.Context) error {
	if p.session == nil {
		return nil
	}
	p.logger.Info("stopping pyroscope profiling")
	return p.session.Stop()
}

func (p *Profiler) settings() pyroscope.Config {
	return pyroscope.Config{
		ApplicationName:   p.cfg.ApplicationName,
		ServerAddress:     p.cfg.ServerAddress,
		BasicAuthUser:     p.cfg.BasicAuthUser,
		BasicAuthPassword: p.cfg.BasicAuthPass,
		ProfileTypes:      p.profileTypes(),
		SampleRate:        p.cfg.SampleRate,
		DisableGCRuns:     p.cfg.DisableGCRuns,
		Logger:            p,
	}
}

func (p *Profiler) profileTypes() []pyroscope.ProfileType {
	if len(p.cfg.ProfileTypes) == 0 {
		return defaultProfileTypes
	}

	out := make([]pyroscope.ProfileType, 0, len(p.cfg.ProfileTypes))
	for _, name := range p.cfg.ProfileTypes {
		t, ok := profileTypes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			p.logger.Warnw("ignoring unknown pyroscope profile type", "type", name)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Debugf, Infof and Errorf route the agent's own messages into our logger

func (p *Profiler) Debugf(format string, args ...interface{}) {
	p.logger.Debugf("pyroscope: "+format, args...)
}

func (p *Profiler) Infof(format string, args ...interface{}) {
	p.logger.Infof("pyroscope: "+format, args...)
}

func (p *Profiler) Errorf(format string, args ...interface{}) {
	p.logger.Errorf("pyroscope: "+format, args...)
}
