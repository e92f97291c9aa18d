package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/supportchat/internal/domain"
)

// ErrTranscriptNotFound is returned for an unknown transcript id.
var ErrTranscriptNotFound = errors.New("transcript not found")

// Transcript is one view's recording of a session.
type Transcript struct {
	ID        string
	SessionID string
	ViewRole  string
	AgentID   string
	StartedAt time.Time
	EndedAt   time.Time // zero while the view is open
}

// Entry is an archived message.
type Entry struct {
	ID           int64
	TranscriptID string
	domain.Message
	Handle     string
	RolledBack bool
}

// TranscriptStore records what each view showed. It is append-only apart
// from marking failed sends and a watcher's snapshot replace.
type TranscriptStore struct {
	db  *DB
	now func() time.Time
}

// NewTranscriptStore creates a transcript store using the given database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db, now: time.Now}
}

// Begin starts a transcript and returns its id.
func (s *TranscriptStore) Begin(sessionID, viewRole, agentID string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.sql.Exec(
		`INSERT INTO transcripts (id, session_id, view_role, agent_id, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, viewRole, agentID, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("creating transcript: %w", err)
	}
	return id, nil
}

// End stamps the transcript as finished.
func (s *TranscriptStore) End(id string) error {
	res, err := s.db.sql.Exec(
		`UPDATE transcripts SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		s.now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("ending transcript: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
	}
	return nil
}

// Append archives one message. handle is empty for confirmed messages.
func (s *TranscriptStore) Append(transcriptID string, msg domain.Message, handle string) error {
	return appendMessage(s.db.sql, transcriptID, msg, handle, s.now())
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func appendMessage(db execer, transcriptID string, msg domain.Message, handle string, now time.Time) error {
	var confidence sql.NullFloat64
	if msg.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *msg.Confidence, Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO transcript_messages
		   (transcript_id, role, content, timestamp, confidence, agent_id, handle, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transcriptID, string(msg.Role), msg.Content, msg.Timestamp, confidence,
		msg.AgentID, handle, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// MarkRolledBack flags the tentative message sent under handle.
func (s *TranscriptStore) MarkRolledBack(transcriptID, handle string) error {
	if handle == "" {
		return nil
	}
	_, err := s.db.sql.Exec(
		`UPDATE transcript_messages SET rolled_back = 1 WHERE transcript_id = ? AND handle = ?`,
		transcriptID, handle,
	)
	if err != nil {
		return fmt.Errorf("marking rollback: %w", err)
	}
	return nil
}

// Replace swaps the transcript's messages for msgs in one transaction.
func (s *TranscriptStore) Replace(transcriptID string, msgs []domain.Message) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_messages WHERE transcript_id = ?`, transcriptID); err != nil {
		return fmt.Errorf("clearing transcript: %w", err)
	}
	now := s.now()
	for _, m := range msgs {
		if err := appendMessage(tx, transcriptID, m, "", now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Get returns one transcript.
func (s *TranscriptStore) Get(id string) (*Transcript, error) {
	row := s.db.sql.QueryRow(
		`SELECT id, session_id, view_role, agent_id, started_at, ended_at
		 FROM transcripts WHERE id = ?`, id,
	)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTranscriptNotFound
	}
	return t, err
}

// List returns the transcripts of a session, newest first. An empty
// sessionID lists every transcript.
func (s *TranscriptStore) List(sessionID string) ([]Transcript, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, session_id, view_role, agent_id, started_at, ended_at
		 FROM transcripts WHERE ? = '' OR session_id = ?
		 ORDER BY started_at DESC, rowid DESC`, sessionID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Messages returns a transcript's messages in the order they were shown.
// Rolled-back sends are skipped unless includeRolledBack is set.
func (s *TranscriptStore) Messages(transcriptID string, includeRolledBack bool) ([]Entry, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, transcript_id, role, content, timestamp, confidence, agent_id, handle, rolled_back
		 FROM transcript_messages
		 WHERE transcript_id = ? AND (? OR rolled_back = 0)
		 ORDER BY id`, transcriptID, includeRolledBack,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row scanner) (*Transcript, error) {
	var t Transcript
	var started string
	var ended sql.NullString
	if err := row.Scan(&t.ID, &t.SessionID, &t.ViewRole, &t.AgentID, &started, &ended); err != nil {
		return nil, err
	}
	t.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if ended.Valid {
		t.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
	}
	return &t, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var role string
		var confidence sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.TranscriptID, &role, &e.Content, &e.Timestamp,
			&confidence, &e.AgentID, &e.Handle, &e.RolledBack); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		e.Role = domain.Role(role)
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
