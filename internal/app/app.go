// Package app wires the relay: config, logging, dispatcher, HTTP server and
// the optional audit, mirror and metrics side channels.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"tgnotify/internal/config"
	"tgnotify/internal/dedup"
	"tgnotify/internal/eventbus"
	"tgnotify/internal/httpserver"
	"tgnotify/internal/mirror"
	"tgnotify/internal/ratelimit"
	"tgnotify/internal/relay"
	"tgnotify/internal/runtime/supervisor"
	"tgnotify/internal/storage"
	"tgnotify/internal/telemetry"
	"tgnotify/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics telemetry.Provider
	mirror  *mirror.Mirror

	limiter *ratelimit.Limiter
	dedup   *dedup.Cache
	relay   *relay.Dispatcher
	server  *httpserver.Server

	cron      *cron.Cron
	mu        sync.Mutex
	sweepID   cron.EntryID
	sweepSpec string
	retention time.Duration
	dropped   uint64

	startedAt time.Time
}

// New loads the config at cfgPath and builds every component. override, when
// set, is applied to each parsed config (initial load and reloads).
func New(cfgPath string, override func(*config.Config)) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetOverride(override)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a, err := build(cfgm, cfg, logSvc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func build(cfgm *config.Manager, cfg *config.Config, logSvc *logx.Service, root logx.Logger) (_ *App, err error) {
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	var store storage.Store
	sc, enabled, retention, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		if store, err = storage.Open(sc, root.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				_ = store.Close()
			}
		}()
		log.Info("audit storage enabled", logx.String("driver", sc.Driver), logx.Duration("retention", retention))
	}

	metrics, err := newMetrics(cfg)
	if err != nil {
		return nil, err
	}

	rc, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := newSender(tc)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		log.Warn("telegram.token is not set; every notification will fail with 500")
	}

	maxSources, maxEntries := mapCaps(cfg)
	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		metrics:   metrics,
		limiter:   ratelimit.New(maxSources),
		dedup:     dedup.New(maxEntries),
		sweepSpec: mapSweepSpec(cfg),
		retention: retention,
	}
	a.relay = relay.New(rc, sender, relay.Deps{
		Limiter: a.limiter,
		Dedup:   a.dedup,
		Log:     root.With(logx.String("comp", "relay")),
		Bus:     bus,
		Metrics: metrics,
	})

	router, err := a.newRouter(cfg)
	if err != nil {
		return nil, err
	}
	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.server = httpserver.NewServer(srvCfg, router, root.With(logx.String("comp", "http")))
	return a, nil
}

func (a *App) newRouter(cfg *config.Config) (*gin.Engine, error) {
	return httpserver.NewRouter(mapRouterConfig(cfg), a.relay, a.log.With(logx.String("comp", "http")), a.health)
}

func (a *App) health() map[string]any {
	out := map[string]any{"configured": a.relay.Configured()}
	if a.sup != nil {
		out["uptime"] = time.Since(a.startedAt).Round(time.Second).String()
		out["goroutines"] = a.sup.Counters().Active
	}
	return out
}

// Dispatcher exposes the relay pipeline (used by tests and embedding hosts).
func (a *App) Dispatcher() *relay.Dispatcher { return a.relay }

// Addr returns the HTTP listen address once the server is up.
func (a *App) Addr() string { return a.server.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	cfg := a.cfgm.Get()
	if mc, ok := mapMirrorConfig(cfg); ok {
		m, err := mirror.Dial(ctx, mc, a.log.With(logx.String("comp", "mirror")))
		if err != nil {
			// The relay works without the mirror.
			a.log.Warn("mirror unavailable; continuing without it", logx.String("addr", mc.Addr), logx.Err(err))
		} else {
			a.mirror = m
			events, unsub := a.bus.Subscribe(256, relay.OutcomeDelivered.EventType())
			a.sup.GoRestart("mirror", func(c context.Context) error {
				return m.Run(c, events)
			}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
			go func() {
				<-a.sup.Context().Done()
				unsub()
			}()
		}
	}

	if a.store != nil {
		events, unsub := a.bus.Subscribe(512, relay.EventPrefix)
		a.sup.Go0("audit", func(c context.Context) {
			defer unsub()
			a.runAudit(c, events)
		})
	}

	if err := a.startCron(); err != nil {
		return err
	}

	a.sup.GoRestart("http.server", a.server.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("relay started",
		logx.String("config", a.cfgm.Path()),
		logx.Bool("enabled", cfg.IsEnabled()),
		logx.Bool("configured", a.relay.Configured()),
	)
	return nil
}

func (a *App) startCron() error {
	a.cron = cron.New()
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.cron.AddFunc(a.sweepSpec, a.sweep)
	if err != nil {
		return fmt.Errorf("sweep_every: %w", err)
	}
	a.sweepID = id
	a.cron.Start()
	return nil
}

// reschedule swaps the sweep job when sweep_every changes.
func (a *App) reschedule(spec string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if spec == a.sweepSpec || a.cron == nil {
		return nil
	}
	id, err := a.cron.AddFunc(spec, a.sweep)
	if err != nil {
		return err
	}
	a.cron.Remove(a.sweepID)
	a.sweepID, a.sweepSpec = id, spec
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("cron", time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	// HTTP shutdown, config watch and event subscribers all unwind with the supervisor.
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("mirror", time.Second, func(context.Context) error {
		if a.mirror != nil {
			return a.mirror.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("metrics", time.Second, func(context.Context) error { return a.metrics.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
