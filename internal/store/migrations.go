package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	service      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	org_id       TEXT NOT NULL DEFAULT '',
	last_synced  INTEGER NOT NULL DEFAULT 0,
	chat_count   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	service    TEXT NOT NULL,
	account_id TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0,
	messages   TEXT NOT NULL DEFAULT '[]',
	full_text  TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	synced      INTEGER NOT NULL DEFAULT 0,
	total       INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chats_account_id ON chats(account_id);
CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at);
CREATE INDEX IF NOT EXISTS idx_sync_runs_account ON sync_runs(account_id, started_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
