package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/escalation"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	var agentID, sessionID string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Take an escalated session and chat as the human agent",
		Long: "Take an escalated session and chat as the human agent. The agent id is the " +
			"handle listed by `supportchat sessions`.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			kit, err := newViewKit(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer kit.Close()

			loop := &chatLoop{kit: kit, in: cmd.InOrStdin()}
			connect := loop.connectAgent
			if sessionID != "" {
				connect = func(ctx context.Context, b domain.AgentBinding) error {
					if b.SessionID != sessionID {
						return fmt.Errorf("agent %s holds session %s, not %s", b.AgentID, b.SessionID, sessionID)
					}
					return loop.connectAgent(ctx, b)
				}
			}
			b, err := escalation.New(kit.client, connect, log).Take(ctx, agentID)
			if err != nil {
				return fmt.Errorf("taking %s: %w", agentID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "took session %s as %s (/help for commands)\n", b.SessionID, b.AgentID)
			return loop.run(ctx)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent id of the escalated session")
	cmd.Flags().StringVar(&sessionID, "session", "", "refuse to connect unless the taken session is this one")
	cmd.MarkFlagRequired("agent")
	return cmd
}
