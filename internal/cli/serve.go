package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sejongpeer/studybuddy/internal/engine"
	"github.com/sejongpeer/studybuddy/internal/ops"
	"github.com/sejongpeer/studybuddy/internal/scheduler"
)

// Job names registered with the scheduler.
const (
	JobMatching  = "matching"
	JobReconcile = "reconcile"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the matching and reconciliation schedule",
		Long: `Run the scheduled service until interrupted.

The matching tick pairs WAITING requests every matching_interval. The
reconcile tick fails matches left unanswered for stale_timeout, every
reconcile_interval. When http_addr is set, the ops server exposes
/healthz, /jobs and /jobs/{name}/trigger.

Example:
  studybuddy serve --config studybuddy.yaml
  STUDYBUDDY_DB=/var/lib/studybuddy/buddy.db studybuddy serve -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(rootOpts, cmd)
		},
	}
}

func serve(opts *RootOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newSchedule(a)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up schedule", err)
	}

	a.logger.Info("service starting",
		"db", a.cfg.DB,
		"stale_timeout", a.cfg.StaleTimeout.Std().String(),
		"matching_interval", a.cfg.MatchingInterval.Std().String(),
		"reconcile_interval", a.cfg.ReconcileInterval.Std().String(),
		"notifier", a.cfg.Notifier,
		"lock", a.cfg.Lock,
		"lock_holder", lockHolder(a.locker))
	fmt.Fprintln(cmd.OutOrStdout(), "Service started. Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if a.cfg.HTTPAddr != "" {
		srv := ops.NewServer(sched, a.store, a.logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, a.cfg.HTTPAddr, a.cfg.CORSOrigins)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "service error", err)
	}

	a.logger.Info("service stopped gracefully")
	return nil
}

// newSchedule registers the matching and reconcile ticks. A tick refused
// because another instance holds the procedure lock is not an error.
func newSchedule(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.clock, a.logger)

	err := sched.Every(JobMatching, a.cfg.MatchingInterval.Std(), func(ctx context.Context) error {
		_, err := a.engine.ExecuteMatching(ctx)
		return ignoreBusy(a, JobMatching, err)
	})
	if err != nil {
		return nil, err
	}

	err = sched.Every(JobReconcile, a.cfg.ReconcileInterval.Std(), func(ctx context.Context) error {
		_, err := a.engine.ReconcileStale(ctx, a.cfg.StaleTimeout.Std())
		return ignoreBusy(a, JobReconcile, err)
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func ignoreBusy(a *app, job string, err error) error {
	if errors.Is(err, engine.ErrTickInProgress) {
		a.logger.Info("tick skipped, lock held elsewhere", "job", job)
		return nil
	}
	return err
}
