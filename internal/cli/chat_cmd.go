package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/realtime"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with support as a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = domain.NewSessionID()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s (/help for commands)\n", sessionID)
			return runView(cmd, realtime.RoleSession, sessionID, false)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session (default: new session)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		sessionID string
		intervene bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a live session read-only",
		Long: "Watch a live session read-only. /intervene (or --intervene) escalates the " +
			"session, takes it and continues as the agent.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, realtime.RoleWatch, sessionID, intervene)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session to watch")
	cmd.Flags().BoolVar(&intervene, "intervene", false, "join the conversation as an agent right away")
	cmd.MarkFlagRequired("session")
	return cmd
}

// runView opens one view for the command's lifetime and drives it from stdin.
func runView(cmd *cobra.Command, role realtime.Role, sessionID string, intervene bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kit, err := newViewKit(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer kit.Close()

	v, err := kit.view(role, sessionID, "")
	if err != nil {
		return err
	}
	loop := &chatLoop{kit: kit, in: cmd.InOrStdin(), current: v}
	if err := v.Start(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if intervene {
		if err := loop.intervene(ctx); err != nil {
			return err
		}
	}
	return loop.run(ctx)
}
