package cli

import (
	"fmt"

	"github.com/soyeahso/supportchat/internal/render"
	"github.com/soyeahso/supportchat/internal/store"
	"github.com/spf13/cobra"
)

func newTranscriptCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Read the local transcript archive",
		Long: "List archived transcripts, newest first. With --session, print every " +
			"transcript of that session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(ts *store.TranscriptStore) error {
				list, err := ts.List(sessionID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No transcripts.")
					return nil
				}
				for _, t := range list {
					fmt.Fprintf(out, "%s  %-24s %-8s %s\n", t.ID, t.SessionID, t.ViewRole,
						t.StartedAt.Local().Format("2006-01-02 15:04"))
					if sessionID != "" {
						if err := printTranscript(cmd, ts, t.ID, false); err != nil {
							return err
						}
						fmt.Fprintln(out)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "only this session")
	cmd.AddCommand(newTranscriptShowCmd())
	cmd.AddCommand(newTranscriptSearchCmd())
	return cmd
}

func newTranscriptShowCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "show <transcript-id>",
		Short: "Print one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(ts *store.TranscriptStore) error {
				t, err := ts.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s, %s view\n", t.SessionID, t.ViewRole)
				return printTranscript(cmd, ts, t.ID, all)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include sends that failed and were rolled back")
	return cmd
}

func newTranscriptSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across archived messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(ts *store.TranscriptStore) error {
				hits, err := ts.Search(args[0], limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
					return nil
				}
				p := render.New(cmd.OutOrStdout(), render.Options{}, log)
				for _, h := range hits {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", h.SessionID, p.Message(h.Message))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of matches")
	return cmd
}

func withArchive(fn func(*store.TranscriptStore) error) error {
	db, err := openTranscripts()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewTranscriptStore(db))
}

func printTranscript(cmd *cobra.Command, ts *store.TranscriptStore, id string, all bool) error {
	entries, err := ts.Messages(id, all)
	if err != nil {
		return err
	}
	p := render.New(cmd.OutOrStdout(), render.Options{Markdown: markdown}, log)
	for _, e := range entries {
		line := p.Message(e.Message)
		if e.RolledBack {
			line += " (not sent)"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
