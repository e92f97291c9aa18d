package cli

import (
	"context"
	"io"
	"net/http"

	"github.com/soyeahso/supportchat/internal/backend"
	"github.com/soyeahso/supportchat/internal/hooks"
	"github.com/soyeahso/supportchat/internal/realtime"
	"github.com/soyeahso/supportchat/internal/render"
	"github.com/soyeahso/supportchat/internal/store"
	"github.com/soyeahso/supportchat/internal/version"
)

func newClient() *backend.Client {
	return backend.New(backend.BaseURL(cfg.Backend), backend.StaticToken(cfg.Auth.Token),
		cfg.Backend.RequestTimeout, log)
}

// dialHeader is sent on socket upgrades. The token never goes in the URL.
func dialHeader() http.Header {
	h := http.Header{"User-Agent": {version.UserAgent()}}
	if cfg.Auth.Token != "" {
		h.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}
	return h
}

func historyLoader(c *backend.Client) realtime.LoadFunc {
	return func(ctx context.Context, sessionID string) (realtime.Bootstrap, error) {
		h, err := c.History(ctx, sessionID)
		if err != nil {
			return realtime.Bootstrap{}, err
		}
		return realtime.Bootstrap{
			Messages:  h.Messages(),
			Escalated: h.Escalated,
			AgentID:   h.AgentID,
		}, nil
	}
}

func openTranscripts() (*store.DB, error) {
	path := cfg.Transcript.Path
	if path == "" {
		path = paths.TranscriptDB()
	}
	return store.Open(path, log)
}

// viewKit builds the views of one interactive run. All of them share one
// hooks manager, so the printer and transcript follow a watcher that turns
// into an agent view.
type viewKit struct {
	client  *backend.Client
	hooks   *hooks.Manager
	printer *render.Printer
	archive *store.TranscriptStore
	db      *store.DB
	rec     *store.Recorder
}

func newViewKit(out io.Writer) (*viewKit, error) {
	k := &viewKit{
		client:  newClient(),
		hooks:   hooks.NewManager(log),
		printer: render.New(out, render.Options{Markdown: markdown}, log),
	}
	k.printer.Attach(k.hooks)

	if cfg.Transcript.Enabled {
		db, err := openTranscripts()
		if err != nil {
			return nil, err
		}
		k.db = db
		k.archive = store.NewTranscriptStore(db)
	}
	return k, nil
}

// view creates (but does not start) a view and points the transcript at it.
func (k *viewKit) view(role realtime.Role, sessionID, agentID string) (*realtime.View, error) {
	id := sessionID
	if role == realtime.RoleAgent {
		id = agentID
	}
	v := realtime.NewView(realtime.Options{
		Role:           role,
		SessionID:      sessionID,
		AgentID:        agentID,
		URL:            realtime.ResolveURL(cfg.Backend, realtime.Endpoint{Role: role, ID: id}),
		Header:         dialHeader(),
		TypingTimeout:  cfg.Realtime.TypingTimeout,
		TypingThrottle: cfg.Realtime.TypingThrottle,
		Load:           historyLoader(k.client),
		Hooks:          k.hooks,
		Log:            log,
	})

	if err := k.record(role, sessionID, agentID); err != nil {
		return nil, err
	}
	return v, nil
}

// record points the transcript archive at a new view, ending the previous
// transcript. It is a no-op when the archive is disabled.
func (k *viewKit) record(role realtime.Role, sessionID, agentID string) error {
	if k.archive == nil {
		return nil
	}
	if err := k.closeRecorder(); err != nil {
		log.Warn().Err(err).Msg("closing transcript")
	}
	rec, err := k.archive.Record(k.hooks, sessionID, string(role), agentID, log)
	if err != nil {
		return err
	}
	k.rec = rec
	return nil
}

func (k *viewKit) closeRecorder() error {
	if k.rec == nil {
		return nil
	}
	rec := k.rec
	k.rec = nil
	return rec.Close()
}

func (k *viewKit) Close() error {
	err := k.closeRecorder()
	k.printer.Detach(k.hooks)
	if k.db != nil {
		if cerr := k.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
