package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/engine"
)

// requestView is the JSON form of a buddy.Request. The contact number is
// left out of output. Match is set for PAIRED requests.
type requestView struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Scope      string    `json:"scope"`
	College    string    `json:"college,omitempty"`
	Department string    `json:"department,omitempty"`
	Status     string    `json:"status"`
	Match      string    `json:"match,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewRequest(r buddy.Request) requestView {
	return requestView{
		ID:         r.ID,
		Owner:      r.Owner,
		Scope:      string(r.Scope),
		College:    r.College,
		Department: r.Department,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// NewRequestCommand creates the request command group.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Submit and list buddy requests",
	}
	cmd.AddCommand(newRequestSubmitCommand(rootOpts))
	cmd.AddCommand(newRequestListCommand(rootOpts))
	return cmd
}

// SubmitOptions holds flags for request submit.
type SubmitOptions struct {
	*RootOptions
	engine.NewRequest
}

func newRequestSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Ask for a study buddy",
		Long: `Register a WAITING request for a member. A member may hold only one
WAITING or PAIRED request at a time.

Scopes: ALL, SAME_COLLEGE (COLLEGE), SAME_DEPARTMENT (DEPARTMENT).

Example:
  studybuddy request submit --owner 20231234 --contact +821012345678 \
    --scope SAME_COLLEGE --college Engineering --department "Computer Science"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := newFormatter(opts.RootOptions, cmd)
			r, err := a.engine.Submit(cmd.Context(), opts.NewRequest)
			if err != nil {
				return out.Fail("request refused", err)
			}
			return out.Success(viewRequest(r), func(w io.Writer) {
				fmt.Fprintf(w, "Request %s submitted for %s (%s)\n", r.ID, r.Owner, r.Scope)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "member ID (required)")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "phone number for notifications")
	cmd.Flags().StringVar(&opts.Scope, "scope", string(buddy.ScopeAll), "who the member is willing to study with")
	cmd.Flags().StringVar(&opts.College, "college", "", "member's college")
	cmd.Flags().StringVar(&opts.Department, "department", "", "member's department")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newRequestListCommand(rootOpts *RootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a member's requests, oldest first",
		Long: `List every request of a member, oldest first.

Example:
  studybuddy request list --owner 20231234 --format json`,
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
			requests, err := a.engine.Requests(cmd.Context(), owner)
			if err != nil {
				return out.Fail("failed to list requests", err)
			}

			views := make([]requestView, len(requests))
			for i, r := range requests {
				views[i] = viewRequest(r)
				if r.Status != buddy.StatusPaired {
					continue
				}
				m, err := a.store.FindInProgressByParticipant(cmd.Context(), r.ID)
				if err != nil {
					a.logger.Warn("no single in-progress match for paired request",
						"request_id", r.ID, "error", err)
					continue
				}
				views[i].Match = m.ID
			}
			return out.Success(views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintf(w, "No requests for %s.\n", owner)
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSCOPE\tSTATUS\tMATCH\tCREATED")
				for _, v := range views {
					match := v.Match
					if match == "" {
						match = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Scope, v.Status, match, v.CreatedAt.Format(time.RFC3339))
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "member ID (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
