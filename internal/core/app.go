package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"influradar/internal/config"
	"influradar/internal/radar"
	"influradar/internal/scheduler"
	"influradar/internal/store"
	"influradar/internal/transport"
	"influradar/internal/transport/telegram"
	"influradar/internal/twitter"
	"influradar/pkg/logx"
)

// App owns the wiring: config, logging, store, directory client, chat
// adapter, radar and scheduler. Everything is constructed once at
// startup and passed down; there is no ambient global state.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st      store.Store
	adapter *telegram.Adapter
	radar   *radar.Service
	sched   *scheduler.Service

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fatalOnce sync.Once
	fatalErr  error
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	backoff, err := config.ParseDurationOrDefault("twitter.backoff", cfg.Twitter.Backoff, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	tw := twitter.New(twitter.Config{
		BearerToken: cfg.Twitter.BearerToken,
		BaseURL:     cfg.Twitter.BaseURL,
		Backoff:     backoff,
		RatePerSec:  cfg.Twitter.RatePerSec,
	}, logs.Logger().With(logx.String("comp", "twitter")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChannelID:   cfg.Telegram.ChannelID,
		PollTimeout: pollTimeout,
	}, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		st:      st,
		adapter: adapter,
	}

	a.radar = radar.New(radar.Config{
		TargetHandles: cfg.Radar.Targets,
	}, tw, st, adapter, logs.Logger().With(logx.String("comp", "radar")))

	a.sched, err = scheduler.New(scheduler.Config{
		Schedule: cfg.Radar.Schedule,
	}, adapter.Ready(), a.cycle, logs.Logger().With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return a, nil
}

// cycle runs one radar pass. An unresolvable announce channel means the
// bot can never report results, so it takes the process down; everything
// else is already degraded per target inside the radar.
func (a *App) cycle(ctx context.Context) error {
	err := a.radar.RunCycle(ctx)
	if errors.Is(err, transport.ErrChannelGone) {
		a.fail(err)
	}
	return err
}

func (a *App) fail(err error) {
	a.fatalOnce.Do(func() {
		a.fatalErr = err
		if a.cancel != nil {
			a.cancel()
		}
	})
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.runCtx == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.runCtx.Done()
}

// Err returns the first fatal error observed (if any).
func (a *App) Err() error { return a.fatalErr }

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(ctx)

	if err := a.adapter.Start(a.runCtx); err != nil {
		return err
	}

	// Targets are resolved once; failure here means there is nothing to
	// watch, which is a startup error, not a degradable one.
	if err := a.radar.ResolveTargets(a.runCtx); err != nil {
		return err
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(a.runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := a.cfgm.Subscribe()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
			}
		}
	}()

	a.sched.Start(a.runCtx)
	a.log.Info("started", logx.Int("targets", len(a.cfgm.Get().Radar.Targets)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	_ = a.adapter.Stop(ctx)
	a.wg.Wait()

	var firstErr error
	if err := a.st.Close(); err != nil {
		firstErr = err
	}
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
