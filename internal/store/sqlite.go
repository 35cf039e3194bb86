package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/chat-search/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows a single writer, and in-memory databases are
	// private to their connection, so the pool holds one connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetAccount retrieves a single account by ID. Returns (nil, nil) when
// the account does not exist.
func (s *SQLiteStore) GetAccount(
	ctx context.Context,
	id string,
) (*model.Account, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM accounts WHERE id = ?", id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}

	return &account, nil
}

// SaveAccount inserts or replaces an account.
func (s *SQLiteStore) SaveAccount(
	ctx context.Context,
	account model.Account,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (
			id, service, display_name, email, org_id, last_synced, chat_count
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID, string(account.Service), account.DisplayName,
		account.Email, account.OrgID, account.LastSynced, account.ChatCount,
	)
	if err != nil {
		return fmt.Errorf("saving account %s: %w", account.ID, err)
	}

	return nil
}

// DeleteAccount removes an account along with its chats and sync runs in
// one transaction.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE account_id = ?", id); err != nil {
		return fmt.Errorf("deleting chats for account %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_runs WHERE account_id = ?", id); err != nil {
		return fmt.Errorf("deleting sync runs for account %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}

	return tx.Commit()
}

// GetAllAccounts retrieves every account, ordered by ID.
func (s *SQLiteStore) GetAllAccounts(
	ctx context.Context,
) ([]model.Account, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// GetChat retrieves a single chat by ID. Returns (nil, nil) when the chat
// does not exist.
func (s *SQLiteStore) GetChat(
	ctx context.Context,
	id string,
) (*model.Chat, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM chats WHERE id = ?", id)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting chat %s: %w", id, err)
	}

	return &chat, nil
}

// SaveChat inserts or replaces a single chat. Resyncs always overwrite
// the whole record, never merge.
func (s *SQLiteStore) SaveChat(ctx context.Context, chat model.Chat) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages for chat %s: %w", chat.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chats (
			id, service, account_id, chat_id, title,
			created_at, updated_at, messages, full_text, url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, string(chat.Service), chat.AccountID, chat.ChatID,
		chat.Title, chat.CreatedAt, chat.UpdatedAt,
		string(messages), chat.FullText, chat.URL,
	)
	if err != nil {
		return fmt.Errorf("saving chat %s: %w", chat.ID, err)
	}

	return nil
}

// SaveChats inserts or replaces a batch of chats in one transaction.
func (s *SQLiteStore) SaveChats(ctx context.Context, chats []model.Chat) error {
	if len(chats) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO chats (
			id, service, account_id, chat_id, title,
			created_at, updated_at, messages, full_text, url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, chat := range chats {
		messages, err := json.Marshal(chat.Messages)
		if err != nil {
			return fmt.Errorf("marshaling messages for chat %s: %w", chat.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			chat.ID, string(chat.Service), chat.AccountID, chat.ChatID,
			chat.Title, chat.CreatedAt, chat.UpdatedAt,
			string(messages), chat.FullText, chat.URL,
		)
		if err != nil {
			return fmt.Errorf("upserting chat %s: %w", chat.ID, err)
		}
	}

	return tx.Commit()
}

// GetChatsByAccount retrieves all chats belonging to one account.
func (s *SQLiteStore) GetChatsByAccount(
	ctx context.Context,
	accountID string,
) ([]model.Chat, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM chats WHERE account_id = ? ORDER BY updated_at DESC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chats for account %s: %w", accountID, err)
	}
	defer rows.Close()

	return collectChats(rows)
}

// GetAllChats retrieves every stored chat.
func (s *SQLiteStore) GetAllChats(ctx context.Context) ([]model.Chat, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM chats ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	return collectChats(rows)
}

// DeleteChat removes a chat by ID.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return nil
}

// CountChats returns the total number of stored chats.
func (s *SQLiteStore) CountChats(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM chats")
	if err != nil {
		return 0, fmt.Errorf("counting chats: %w", err)
	}
	return count, nil
}

// CreateSyncRun inserts a sync run history record.
func (s *SQLiteStore) CreateSyncRun(
	ctx context.Context,
	run model.SyncRun,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, account_id, started_at, finished_at, synced, total, error
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AccountID, run.StartedAt, run.FinishedAt,
		run.Synced, run.Total, run.Error,
	)
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}

	return nil
}

// GetSyncRuns retrieves the most recent sync runs for an account, newest
// first. A limit <= 0 defaults to 20.
func (s *SQLiteStore) GetSyncRuns(
	ctx context.Context,
	accountID string,
	limit int,
) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM sync_runs WHERE account_id = ? ORDER BY started_at DESC LIMIT ?",
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs for %s: %w", accountID, err)
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		err := rows.Scan(
			&run.ID, &run.AccountID, &run.StartedAt, &run.FinishedAt,
			&run.Synced, &run.Total, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning sync run row: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// rowScanner abstracts sqlx.Row and sqlx.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccount scans an account row.
func scanAccount(row rowScanner) (model.Account, error) {
	var (
		account model.Account
		svc     string
	)

	err := row.Scan(
		&account.ID, &svc, &account.DisplayName, &account.Email,
		&account.OrgID, &account.LastSynced, &account.ChatCount,
	)
	if err != nil {
		return model.Account{}, err
	}

	account.Service = model.Service(svc)
	return account, nil
}

// scanChat scans a chat row, unmarshaling the messages JSON column.
func scanChat(row rowScanner) (model.Chat, error) {
	var (
		chat     model.Chat
		svc      string
		messages string
	)

	err := row.Scan(
		&chat.ID, &svc, &chat.AccountID, &chat.ChatID, &chat.Title,
		&chat.CreatedAt, &chat.UpdatedAt, &messages, &chat.FullText,
		&chat.URL,
	)
	if err != nil {
		return model.Chat{}, err
	}

	chat.Service = model.Service(svc)

	if messages != "" {
		if err := json.Unmarshal([]byte(messages), &chat.Messages); err != nil {
			return model.Chat{}, fmt.Errorf("unmarshaling messages: %w", err)
		}
	}

	return chat, nil
}

// collectChats drains a chats result set.
func collectChats(rows *sqlx.Rows) ([]model.Chat, error) {
	var chats []model.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
