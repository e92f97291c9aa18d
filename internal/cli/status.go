package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/supportchat/internal/backend"
	"github.com/soyeahso/supportchat/internal/config"
	"github.com/soyeahso/supportchat/internal/realtime"
	"github.com/soyeahso/supportchat/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a session's status, or the client configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if sessionID != "" {
				st, err := newClient().Status(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Session:   %s\n", st.SessionID)
				fmt.Fprintf(out, "Escalated: %v\n", st.IsEscalated)
				if st.AgentID != "" {
					fmt.Fprintf(out, "Agent:     %s\n", st.AgentID)
				}
				if st.EscalatedAt != "" {
					fmt.Fprintf(out, "Since:     %s\n", st.EscalatedAt)
				}
				fmt.Fprintf(out, "Messages:  %d\n", st.MessageCount)
				return nil
			}

			fmt.Fprintf(out, "supportchat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}

			fmt.Fprintf(out, "REST:    %s\n", newClient().BaseURL())
			probe := realtime.Endpoint{Role: realtime.RoleSession, ID: "x"}
			fmt.Fprintf(out, "Socket:  %s\n", strings.TrimSuffix(realtime.ResolveURL(cfg.Backend, probe), probe.Path()))
			fmt.Fprintf(out, "Typing:  timeout=%s throttle=%s\n", cfg.Realtime.TypingTimeout, cfg.Realtime.TypingThrottle)

			if cfg.Auth.Token == "" {
				fmt.Fprintln(out, "Auth:    (no token)")
			} else if info, err := backend.InspectToken(cfg.Auth.Token); err == nil && !info.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Auth:    token for %s, expires %s\n", info.Subject, info.ExpiresAt.Local().Format("2006-01-02 15:04"))
			} else {
				fmt.Fprintln(out, "Auth:    token set")
			}

			if cfg.Transcript.Enabled {
				path := cfg.Transcript.Path
				if path == "" {
					path = paths.TranscriptDB()
				}
				fmt.Fprintf(out, "Archive: %s\n", path)
			} else {
				fmt.Fprintln(out, "Archive: (disabled)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "show the backend status of this session")
	return cmd
}
