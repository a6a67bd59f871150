// Package app wires configuration, logging, storage and metrics around the
// simulation pipeline.
package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"msgsim/internal/config"
	"msgsim/internal/eventbus"
	"msgsim/internal/metrics"
	"msgsim/internal/monitor"
	rtsup "msgsim/internal/runtime/supervisor"
	"msgsim/internal/sender"
	"msgsim/internal/storage"
	logx "msgsim/pkg/logx"
)

// Options configure an App. Zero values get defaults.
type Options struct {
	ConfigPath string

	// Environ replaces the process environment for MSGSIM_* overrides.
	Environ map[string]string

	Stdout   io.Writer
	Reporter monitor.Reporter
	Seed     int64

	SenderOptions []sender.Option
}

type App struct {
	opts Options

	cfgm *config.Manager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	reg        *metrics.Registry
	metricsSrv *metrics.Server

	sup *rtsup.Supervisor
}

// New loads and validates the config, then builds the shared services.
// Nothing runs until Start or Run.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	if opts.Environ != nil {
		cfgm.SetEnviron(opts.Environ)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig())
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a := &App{
		opts:  opts,
		cfgm:  cfgm,
		cfg:   cfg,
		log:   log,
		logs:  logSvc,
		bus:   eventbus.New(),
		store: store,
	}
	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		a.reg = metrics.NewRegistry()
		a.metricsSrv = metrics.NewServer(metrics.ServerConfig{
			Addr:  addr,
			Path:  cfg.Metrics.Path,
			Pprof: cfg.Metrics.Pprof,
		}, a.reg, log)
	}
	return a, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Metrics returns the Prometheus registry (nil when metrics are disabled).
func (a *App) Metrics() *metrics.Registry { return a.reg }

// Start launches background services: config watch with live logging
// changes, event logging and the metrics listener. None of them can fail
// a run.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.applyConfigUpdates)

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Sender completions are frequent; keep them at trace level.
				if e.Type == eventbus.TypeSenderDone {
					a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	if a.metricsSrv != nil {
		a.sup.GoRestart("metrics.serve", a.metricsSrv.Run,
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
	}
	a.log.Debug("app started")
	return nil
}

// applyConfigUpdates applies the logging section of every reloaded config.
// Other sections only take effect on the next start.
func (a *App) applyConfigUpdates(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.logs.Apply(newCfg.LogConfig())
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if rest := config.RestartRequired(sections); len(rest) > 0 {
				a.log.Warn("config sections ignored until restart", logx.String("sections", strings.Join(rest, ",")))
			}
		}
	}
}

// Run executes one simulation with the loaded config and records it in
// the run history when storage is enabled.
func (a *App) Run(ctx context.Context) (Summary, error) {
	p, err := a.newPipeline(a.cfg.Simulation(), a.opts.Reporter)
	if err != nil {
		return Summary{}, err
	}
	sum, runErr := p.Run(ctx)
	a.record(ctx, sum)
	return sum, runErr
}

func (a *App) newPipeline(sim config.Simulation, rep monitor.Reporter) (*Pipeline, error) {
	p, err := NewPipeline(sim, Deps{
		Log:           a.log.With(logx.String("comp", "pipeline")),
		Bus:           a.bus,
		Reporter:      rep,
		Stdout:        a.opts.Stdout,
		Seed:          a.opts.Seed,
		SenderOptions: a.opts.SenderOptions,
	})
	if err != nil {
		return nil, err
	}
	if a.reg != nil {
		a.reg.Collector.Attach(p.Stats(), p.Broker())
	}
	return p, nil
}

func (a *App) record(ctx context.Context, sum Summary) {
	if a.store == nil || sum.RunID == "" {
		return
	}
	// The run context may already be cancelled (signal); still persist.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.store.AppendRun(sctx, sum.Record()); err != nil {
		a.log.Warn("run history append failed", logx.String("run", sum.RunID), logx.Err(err))
	}
}

// History returns the most recent runs, newest first.
func (a *App) History(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentRuns(ctx, limit)
}

// Stop cancels background services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Debug("app stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
