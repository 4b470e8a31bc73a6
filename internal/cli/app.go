package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sejongpeer/studybuddy/internal/clock"
	"github.com/sejongpeer/studybuddy/internal/config"
	"github.com/sejongpeer/studybuddy/internal/engine"
	"github.com/sejongpeer/studybuddy/internal/notify"
	"github.com/sejongpeer/studybuddy/internal/store"
)

// app is everything a command needs, built from the configuration.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	clock  clock.Clock
	store  *store.Store
	locker engine.Locker
	engine *engine.Engine
}

// newLogger logs text to w, at debug level when verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads the configuration, opens the database and wires the engine.
// The caller must close the returned app.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.DB = opts.DB
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	locker, err := newLocker(cfg, st, clk)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to set up locking", err)
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway, err = newGateway(ctx, cfg, logger)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to set up notifications", err)
		}
	}

	eng := engine.New(st,
		engine.WithClock(clk),
		engine.WithGateway(gateway),
		engine.WithLocker(locker),
		engine.WithLogger(logger),
	)

	return &app{cfg: cfg, logger: logger, clock: clk, store: st, locker: locker, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func newLocker(cfg config.Config, st *store.Store, clk clock.Clock) (engine.Locker, error) {
	switch cfg.Lock {
	case config.LockLease:
		host, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		holder := fmt.Sprintf("%s:%d", host, os.Getpid())
		return store.NewLeaseLocker(st, holder, cfg.LockTTL.Std(), clk), nil
	case config.LockMutex:
		return engine.NewMutexLocker(), nil
	}
	return nil, fmt.Errorf("unknown lock mode %q", cfg.Lock)
}

// lockHolder names who ticks run as: the lease holder, or "local" for the
// in-process mutex.
func lockHolder(l engine.Locker) string {
	if lease, ok := l.(*store.LeaseLocker); ok {
		return lease.Holder()
	}
	return "local"
}

func newGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (notify.Gateway, error) {
	switch cfg.Notifier {
	case config.NotifierSNS:
		return notify.NewSNSGatewayFromEnv(ctx, cfg.SNS.Region, cfg.SNS.SenderID)
	case config.NotifierLog:
		return notify.LogGateway{Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
}
