package store

import (
	"context"

	"github.com/nhle/chat-search/internal/model"
)

// Store defines the persistence interface for accounts, chats, and sync
// run history. Lookups for missing records return (nil, nil) rather than
// an error; callers decide whether absence is fatal.
type Store interface {
	// === Accounts ===

	GetAccount(ctx context.Context, id string) (*model.Account, error)
	SaveAccount(ctx context.Context, account model.Account) error
	// DeleteAccount removes an account and cascades to its chats and
	// sync runs.
	DeleteAccount(ctx context.Context, id string) error
	GetAllAccounts(ctx context.Context) ([]model.Account, error)

	// === Chats ===

	GetChat(ctx context.Context, id string) (*model.Chat, error)
	SaveChat(ctx context.Context, chat model.Chat) error
	SaveChats(ctx context.Context, chats []model.Chat) error
	GetChatsByAccount(ctx context.Context, accountID string) ([]model.Chat, error)
	GetAllChats(ctx context.Context) ([]model.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	CountChats(ctx context.Context) (int, error)

	// === Sync history ===

	CreateSyncRun(ctx context.Context, run model.SyncRun) error
	GetSyncRuns(ctx context.Context, accountID string, limit int) ([]model.SyncRun, error)
}
