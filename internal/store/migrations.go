package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create transcripts and messages",
		SQL: `
			CREATE TABLE transcripts (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL,
				view_role   TEXT NOT NULL,
				agent_id    TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				ended_at    TEXT
			);

			CREATE INDEX idx_transcripts_session ON transcripts (session_id, started_at);

			CREATE TABLE transcript_messages (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				transcript_id  TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
				role           TEXT NOT NULL,
				content        TEXT NOT NULL,
				timestamp      TEXT NOT NULL DEFAULT '',
				confidence     REAL,
				agent_id       TEXT NOT NULL DEFAULT '',
				recorded_at    TEXT NOT NULL
			);

			CREATE INDEX idx_transcript_messages ON transcript_messages (transcript_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "track tentative sends",
		SQL: `
			ALTER TABLE transcript_messages ADD COLUMN handle TEXT NOT NULL DEFAULT '';
			ALTER TABLE transcript_messages ADD COLUMN rolled_back INTEGER NOT NULL DEFAULT 0;

			CREATE INDEX idx_transcript_messages_handle ON transcript_messages (transcript_id, handle)
				WHERE handle != '';
		`,
	},
	{
		Version: 3,
		Name:    "full-text search over messages",
		SQL: `
			CREATE VIRTUAL TABLE transcript_fts USING fts5(
				content,
				content='transcript_messages',
				content_rowid='id'
			);

			CREATE TRIGGER transcript_messages_ai AFTER INSERT ON transcript_messages BEGIN
				INSERT INTO transcript_fts(rowid, content) VALUES (new.id, new.content);
			END;

			CREATE TRIGGER transcript_messages_ad AFTER DELETE ON transcript_messages BEGIN
				INSERT INTO transcript_fts(transcript_fts, rowid, content) VALUES ('delete', old.id, old.content);
			END;

			CREATE TRIGGER transcript_messages_au AFTER UPDATE OF content ON transcript_messages BEGIN
				INSERT INTO transcript_fts(transcript_fts, rowid, content) VALUES ('delete', old.id, old.content);
				INSERT INTO transcript_fts(rowid, content) VALUES (new.id, new.content);
			END;
		`,
	},
}
