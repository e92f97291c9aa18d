package store

import (
	"context"
	"fmt"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/hooks"
	"github.com/soyeahso/supportchat/internal/logging"
)

const recorderHook = "transcript"

// Recorder archives one view's message changes into a transcript.
type Recorder struct {
	store *TranscriptStore
	hooks *hooks.Manager
	id    string
	log   *logging.Logger
}

// Record starts a transcript and subscribes it to a view's hooks.
func (s *TranscriptStore) Record(h *hooks.Manager, sessionID, viewRole, agentID string, log *logging.Logger) (*Recorder, error) {
	id, err := s.Begin(sessionID, viewRole, agentID)
	if err != nil {
		return nil, err
	}
	r := &Recorder{store: s, hooks: h, id: id, log: log.Sub("transcript")}
	h.On(hooks.EventMessageAppended, recorderHook, r.onAppended)
	h.On(hooks.EventMessageRolledBack, recorderHook, r.onRolledBack)
	h.On(hooks.EventHistoryReplaced, recorderHook, r.onReplaced)
	r.log.Debug().Str("transcript", id).Str("session", sessionID).Msg("recording")
	return r, nil
}

// ID returns the transcript id.
func (r *Recorder) ID() string { return r.id }

// Close unsubscribes and marks the transcript ended.
func (r *Recorder) Close() error {
	r.hooks.Off(hooks.EventMessageAppended, recorderHook)
	r.hooks.Off(hooks.EventMessageRolledBack, recorderHook)
	r.hooks.Off(hooks.EventHistoryReplaced, recorderHook)
	return r.store.End(r.id)
}

func (r *Recorder) onAppended(_ context.Context, p hooks.Payload) error {
	msg, ok := p.Data["message"].(domain.Message)
	if !ok {
		return fmt.Errorf("payload has no message")
	}
	handle, _ := p.Data["handle"].(string)
	return r.store.Append(r.id, msg, handle)
}

func (r *Recorder) onRolledBack(_ context.Context, p hooks.Payload) error {
	handle, _ := p.Data["handle"].(string)
	return r.store.MarkRolledBack(r.id, handle)
}

func (r *Recorder) onReplaced(_ context.Context, p hooks.Payload) error {
	msgs, _ := p.Data["messages"].([]domain.Message)
	return r.store.Replace(r.id, msgs)
}
