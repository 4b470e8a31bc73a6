package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sejongpeer/studybuddy/internal/engine"
)

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Run one matching tick",
		Long: `Pair WAITING requests once, oldest first, and print the report.

Example:
  studybuddy match --db ./studybuddy.db
  studybuddy match --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := newFormatter(rootOpts, cmd)
			report, err := a.engine.ExecuteMatching(cmd.Context())
			if err != nil {
				return out.Fail("matching tick failed", err)
			}
			return out.Success(report, func(w io.Writer) {
				fmt.Fprintf(w, "Matching tick complete: %d paired, %d failed (%d considered, %d excluded)\n",
					report.Paired, report.Failed, report.Considered, report.Excluded)
			})
		},
	}
}

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Timeout time.Duration // zero means the configured stale_timeout
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation tick",
		Long: `Fail every match whose PAIRED request has gone unanswered for the
stale timeout, and print the report. A request idle for exactly the
timeout is resolved.

Example:
  studybuddy reconcile
  studybuddy reconcile --timeout 36h --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			timeout := opts.Timeout
			if !cmd.Flags().Changed("timeout") {
				timeout = a.cfg.StaleTimeout.Std()
			}

			out := newFormatter(opts.RootOptions, cmd)
			report, err := a.engine.ReconcileStale(cmd.Context(), timeout)
			if err != nil {
				return out.Fail("reconcile tick failed", err)
			}
			return out.Success(report, func(w io.Writer) {
				fmt.Fprintf(w, "Reconcile tick complete: %d resolved of %d stale (%d scanned)\n",
					report.Resolved, report.Stale, report.Scanned)
				if report.Inconsistent+report.Failed+report.Skipped > 0 {
					fmt.Fprintf(w, "  inconsistent: %d, failed: %d, skipped: %d\n",
						report.Inconsistent, report.Failed, report.Skipped)
				}
			})
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", engine.DefaultStaleTimeout, "stale timeout (defaults to the configured stale_timeout)")

	return cmd
}
