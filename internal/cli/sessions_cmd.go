package cli

import (
	"fmt"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/render"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List escalated sessions waiting for an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := newClient().EscalatedSessions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(q.Sessions) == 0 {
				fmt.Fprintln(out, "No sessions waiting.")
				return nil
			}
			fmt.Fprintf(out, "  %-16s %-24s %-8s %s\n", "AGENT", "SESSION", "MSGS", "ESCALATED")
			for _, s := range q.Sessions {
				fmt.Fprintf(out, "  %-16s %-24s %-8d %s\n", s.AgentID, s.SessionID, s.MessageCount, s.EscalatedAt)
			}
			fmt.Fprintf(out, "\n%d waiting\n", q.TotalWaiting)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a session's conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newClient().History(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			printMessages(cmd, h.Messages())
			if h.Escalated {
				fmt.Fprintf(cmd.OutOrStdout(), "\nescalated to %s\n", h.AgentID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the backend's summary of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().Summary(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Summary)
			fmt.Fprintf(cmd.OutOrStdout(), "(%d messages)\n", s.MessageCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.MarkFlagRequired("session")
	return cmd
}

func printMessages(cmd *cobra.Command, msgs []domain.Message) {
	p := render.New(cmd.OutOrStdout(), render.Options{Markdown: markdown}, log)
	for _, m := range msgs {
		fmt.Fprintln(cmd.OutOrStdout(), p.Message(m))
	}
}
