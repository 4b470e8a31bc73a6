package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sejongpeer/studybuddy/internal/buddy"
)

// matchView is the JSON form of a buddy.Match.
type matchView struct {
	ID        string `json:"id"`
	RequestA  string `json:"request_a"`
	RequestB  string `json:"request_b"`
	Status    string `json:"status"`
	AcceptedA bool   `json:"accepted_a"`
	AcceptedB bool   `json:"accepted_b"`
}

func viewMatch(m buddy.Match) matchView {
	return matchView{
		ID:        m.ID,
		RequestA:  m.RequestA,
		RequestB:  m.RequestB,
		Status:    string(m.Status),
		AcceptedA: m.AcceptedA,
		AcceptedB: m.AcceptedB,
	}
}

// NewRespondCommand creates the respond command group.
func NewRespondCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Accept a match or withdraw a request on a member's behalf",
	}
	cmd.AddCommand(newAcceptCommand(rootOpts))
	cmd.AddCommand(newWithdrawCommand(rootOpts))
	return cmd
}

func newAcceptCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "accept <request-id>",
		Short: "Accept the match a PAIRED request is in",
		Long: `Record the member's acceptance of their match. When the partner has
already accepted, the match completes and both requests are confirmed.

Example:
  studybuddy respond accept --actor 20231234 0199a6f2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := newFormatter(rootOpts, cmd)
			result, err := a.engine.Accept(cmd.Context(), actor, args[0])
			if err != nil {
				return out.Fail("accept refused", err)
			}

			data := struct {
				Match     matchView `json:"match"`
				Completed bool      `json:"completed"`
			}{viewMatch(result.Match), result.Completed}
			return out.Success(data, func(w io.Writer) {
				if result.Completed {
					fmt.Fprintf(w, "Match %s completed: both members accepted\n", result.Match.ID)
					return
				}
				fmt.Fprintf(w, "Accepted match %s; waiting for the partner\n", result.Match.ID)
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "member ID of the request owner (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func newWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "withdraw <request-id>",
		Short: "Withdraw a WAITING or PAIRED request",
		Long: `Cancel the member's request. A PAIRED request takes its match down with
it: the partner's request is denied and the partner is notified.

Example:
  studybuddy respond withdraw --actor 20231234 0199a6f2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := newFormatter(rootOpts, cmd)
			if err := a.engine.Withdraw(cmd.Context(), actor, args[0]); err != nil {
				return out.Fail("withdraw refused", err)
			}
			data := map[string]string{"request": args[0], "status": string(buddy.StatusRejected)}
			return out.Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "Request %s withdrawn\n", args[0])
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "member ID of the request owner (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
