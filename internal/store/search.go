package store

import (
	"database/sql"
	"fmt"

	"github.com/soyeahso/supportchat/internal/domain"
)

// Hit is a search result: the matching message plus the session it
// belongs to.
type Hit struct {
	Entry
	SessionID string
	Rank      float64 // bm25 score, lower is better
}

// Search finds archived messages matching an FTS5 query. Rolled-back sends
// never match. Limit of 0 defaults to 20.
func (s *TranscriptStore) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.sql.Query(
		`SELECT tm.id, tm.transcript_id, tm.role, tm.content, tm.timestamp, tm.confidence,
		        tm.agent_id, tm.handle, tm.rolled_back, t.session_id, bm25(transcript_fts) AS score
		 FROM transcript_fts
		 JOIN transcript_messages tm ON tm.id = transcript_fts.rowid
		 JOIN transcripts t ON t.id = tm.transcript_id
		 WHERE transcript_fts MATCH ? AND tm.rolled_back = 0
		 ORDER BY score
		 LIMIT ?`, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching transcripts: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var role string
		var confidence sql.NullFloat64
		if err := rows.Scan(&h.ID, &h.TranscriptID, &role, &h.Content, &h.Timestamp, &confidence,
			&h.AgentID, &h.Handle, &h.RolledBack, &h.SessionID, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		h.Role = domain.Role(role)
		if confidence.Valid {
			c := confidence.Float64
			h.Confidence = &c
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
