package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyeahso/supportchat/internal/backend"
	"github.com/soyeahso/supportchat/internal/config"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var (
		email string
		role  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as an employee or admin and store the token",
		Long:  "Log in as an employee or admin. The password is read from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := bufio.NewScanner(cmd.InOrStdin())
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return errors.New("no password on stdin")
			}
			password := strings.TrimRight(sc.Text(), "\r")

			res, err := newClient().Login(cmd.Context(), backend.LoginRequest{
				Email:    email,
				Password: password,
				Role:     role,
			})
			if err != nil {
				return err
			}
			if res.AccessToken == "" {
				return errors.New("login returned no token")
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			config.SetValueAtPath(raw, []string{"auth", "token"}, res.AccessToken)
			if err := os.MkdirAll(filepath.Dir(paths.Config), 0o700); err != nil {
				return err
			}
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}

			name := res.User.Username
			if name == "" {
				name = res.User.Email
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", name, res.User.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&role, "role", "employee", "account role (employee or admin)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored token's claims and the backend's view of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cfg.Auth.Token == "" {
				return errors.New("not logged in")
			}

			info, err := backend.InspectToken(cfg.Auth.Token)
			switch {
			case errors.Is(err, backend.ErrNotJWT):
				fmt.Fprintln(out, "Token:   opaque")
			case err != nil:
				fmt.Fprintf(out, "Token:   unreadable (%v)\n", err)
			default:
				fmt.Fprintf(out, "Subject: %s\n", info.Subject)
				if !info.ExpiresAt.IsZero() {
					state := "valid"
					if info.Expired(time.Now()) {
						state = "expired"
					}
					fmt.Fprintf(out, "Expires: %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC3339), state)
				}
			}

			u, err := newClient().Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "User:    %s <%s>\n", u.Username, u.Email)
			fmt.Fprintf(out, "Role:    %s\n", u.Role)
			fmt.Fprintf(out, "Active:  %v\n", u.IsActive)
			return nil
		},
	}
}
