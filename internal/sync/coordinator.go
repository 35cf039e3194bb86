package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/search"
	"github.com/nhle/chat-search/internal/service"
	"github.com/nhle/chat-search/internal/store"
)

// Sync states for one account.
const (
	StatusIdle    = "idle"
	StatusSyncing = "syncing"
	StatusError   = "error"
)

// SyncStatus is the transient sync state of one account. One instance
// exists per account at a time; it is overwritten in place on every
// transition, never queued.
type SyncStatus struct {
	AccountID  string `json:"account_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress,omitempty"`
	Total      int    `json:"total,omitempty"`
	Error      string `json:"error,omitempty"`
	LastSynced int64  `json:"last_synced,omitempty"`
}

// Notifier is invoked synchronously on every status transition. The
// consumer must not block; there is no buffering or backpressure.
type Notifier func(SyncStatus)

// CredentialSource supplies the opaque session credential for a service.
type CredentialSource interface {
	Credentials(svc model.Service) (service.Credentials, error)
}

// CredentialFunc adapts a function to the CredentialSource interface.
type CredentialFunc func(svc model.Service) (service.Credentials, error)

// Credentials calls f.
func (f CredentialFunc) Credentials(svc model.Service) (service.Credentials, error) {
	return f(svc)
}

// AdapterFactory builds the service adapter for an account, selected by
// its service tag.
type AdapterFactory func(account *model.Account) (service.Service, error)

// defaultItemDelay is the courtesy delay between conversation detail
// fetches. Client IPs can be throttled or banned by the remote services,
// so syncs pace themselves.
const defaultItemDelay = 100 * time.Millisecond

// Coordinator drives account syncs: it lists remote conversations, diffs
// them against local state, fetches only changed ones through the
// account's adapter, persists them, and reports progress. Syncs are
// single-flight per account; distinct accounts sync concurrently.
type Coordinator struct {
	store    store.Store
	engine   *search.Engine
	creds    CredentialSource
	adapters AdapterFactory
	notifier Notifier

	itemDelay time.Duration

	mu       gosync.Mutex
	statuses map[string]*SyncStatus
}

// NewCoordinator creates a sync coordinator. The notifier may be nil.
func NewCoordinator(
	s store.Store,
	engine *search.Engine,
	creds CredentialSource,
	adapters AdapterFactory,
	notifier Notifier,
) *Coordinator {
	return &Coordinator{
		store:     s,
		engine:    engine,
		creds:     creds,
		adapters:  adapters,
		notifier:  notifier,
		itemDelay: defaultItemDelay,
		statuses:  make(map[string]*SyncStatus),
	}
}

// SetItemDelay overrides the delay between detail fetches.
func (c *Coordinator) SetItemDelay(d time.Duration) {
	c.itemDelay = d
}

// SyncAccount synchronizes one account. If a sync for the account is
// already in flight, the call is a no-op. Account-level failures (missing
// account, missing credentials, list fetch) abort the sync, surface in
// the status object, and are returned. Per-conversation failures are
// logged and skipped.
func (c *Coordinator) SyncAccount(ctx context.Context, accountID string) error {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account %s: %w", accountID, err)
	}
	if account == nil {
		err := &service.NotFoundError{Kind: "account", ID: accountID}
		c.setStatus(SyncStatus{
			AccountID: accountID,
			Status:    StatusError,
			Error:     err.Error(),
		})
		return err
	}

	// Single-flight guard: check and claim in one critical section.
	c.mu.Lock()
	if st, ok := c.statuses[accountID]; ok && st.Status == StatusSyncing {
		c.mu.Unlock()
		return nil
	}
	c.statuses[accountID] = &SyncStatus{
		AccountID: accountID,
		Status:    StatusSyncing,
	}
	c.mu.Unlock()
	c.notify(SyncStatus{AccountID: accountID, Status: StatusSyncing})

	startedAt := time.Now().UnixMilli()

	runErr := c.runSync(ctx, account, startedAt)
	if runErr != nil {
		c.setStatus(SyncStatus{
			AccountID: accountID,
			Status:    StatusError,
			Error:     runErr.Error(),
		})
		c.recordRun(ctx, model.SyncRun{
			AccountID:  accountID,
			StartedAt:  startedAt,
			FinishedAt: time.Now().UnixMilli(),
			Error:      runErr.Error(),
		})
		return runErr
	}

	return nil
}

// runSync performs the fetch/diff/persist loop for one account. It
// returns only account-level errors; completion bookkeeping (account
// update, idle status, history row) happens here on success.
func (c *Coordinator) runSync(
	ctx context.Context,
	account *model.Account,
	startedAt int64,
) error {
	adapter, err := c.adapters(account)
	if err != nil {
		return fmt.Errorf("selecting adapter for %s: %w", account.ID, err)
	}

	creds, err := c.creds.Credentials(account.Service)
	if err != nil {
		return err
	}
	if creds == "" {
		return &service.AuthError{
			Service: account.Service,
			Message: "no session credentials available",
		}
	}

	conversations, err := adapter.FetchConversationList(ctx, creds)
	if err != nil {
		return err
	}

	existing, err := c.store.GetChatsByAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("loading local chats for %s: %w", account.ID, err)
	}
	existingUpdated := make(map[string]int64, len(existing))
	for _, chat := range existing {
		existingUpdated[chat.ChatID] = chat.UpdatedAt
	}

	// Incremental sync: keep only conversations with no local record or
	// a strictly newer remote updatedAt.
	var toSync []service.Conversation
	for _, conv := range conversations {
		localUpdated, ok := existingUpdated[conv.RemoteID]
		if !ok || conv.UpdatedAt > localUpdated {
			toSync = append(toSync, conv)
		}
	}

	slog.Info("sync: starting",
		"account", account.ID,
		"to_sync", len(toSync),
		"remote_total", len(conversations),
	)

	synced := 0
	for i, conv := range toSync {
		if err := c.syncConversation(ctx, account, adapter, creds, conv); err != nil {
			// Per-conversation failures never abort the batch.
			slog.Warn("sync: skipping conversation",
				"account", account.ID,
				"conversation", conv.RemoteID,
				"error", err,
			)
		} else {
			synced++
		}

		c.setStatus(SyncStatus{
			AccountID: account.ID,
			Status:    StatusSyncing,
			Progress:  i + 1,
			Total:     len(toSync),
		})

		if err := c.sleep(ctx, c.itemDelay); err != nil {
			return err
		}
	}

	now := time.Now().UnixMilli()
	account.LastSynced = now
	account.ChatCount = len(conversations)
	if err := c.store.SaveAccount(ctx, *account); err != nil {
		return fmt.Errorf("updating account %s: %w", account.ID, err)
	}

	c.setStatus(SyncStatus{
		AccountID:  account.ID,
		Status:     StatusIdle,
		LastSynced: now,
	})
	c.recordRun(ctx, model.SyncRun{
		AccountID:  account.ID,
		StartedAt:  startedAt,
		FinishedAt: now,
		Synced:     synced,
		Total:      len(toSync),
	})

	return nil
}

// syncConversation fetches one conversation's detail, normalizes it into
// a canonical chat, persists it, and feeds it to the index.
func (c *Coordinator) syncConversation(
	ctx context.Context,
	account *model.Account,
	adapter service.Service,
	creds service.Credentials,
	conv service.Conversation,
) error {
	detail, err := adapter.FetchConversationDetail(ctx, creds, conv.RemoteID)
	if err != nil {
		return err
	}

	fullText := make([]string, 0, len(detail.Messages))
	for _, msg := range detail.Messages {
		fullText = append(fullText, msg.Content)
	}

	chat := model.Chat{
		ID:        ChatID(account.Service, account.ID, conv.RemoteID),
		Service:   account.Service,
		AccountID: account.ID,
		ChatID:    conv.RemoteID,
		Title:     detail.Title,
		CreatedAt: detail.CreatedAt,
		UpdatedAt: detail.UpdatedAt,
		Messages:  detail.Messages,
		FullText:  joinBlankLines(fullText),
		URL:       detail.URL,
	}

	if err := c.store.SaveChat(ctx, chat); err != nil {
		return fmt.Errorf("persisting chat %s: %w", chat.ID, err)
	}
	c.engine.Add(chat)

	return nil
}

// SyncAll fans out SyncAccount across every known account concurrently.
// Accounts do not block each other; individual failures are joined into
// the returned error.
func (c *Coordinator) SyncAll(ctx context.Context) error {
	accounts, err := c.store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	var (
		wg   gosync.WaitGroup
		errM gosync.Mutex
		errs []error
	)

	for _, account := range accounts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.SyncAccount(ctx, id); err != nil {
				errM.Lock()
				errs = append(errs, err)
				errM.Unlock()
			}
		}(account.ID)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Status returns the current sync status for one account.
func (c *Coordinator) Status(accountID string) (SyncStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.statuses[accountID]
	if !ok {
		return SyncStatus{}, false
	}
	return *st, true
}

// Statuses returns a snapshot of all account sync statuses.
func (c *Coordinator) Statuses() map[string]SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]SyncStatus, len(c.statuses))
	for id, st := range c.statuses {
		snapshot[id] = *st
	}
	return snapshot
}

// ClearStatus drops the tracked status for an account, e.g. after the
// account is deleted.
func (c *Coordinator) ClearStatus(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, accountID)
}

// setStatus overwrites an account's status and notifies observers.
func (c *Coordinator) setStatus(st SyncStatus) {
	c.mu.Lock()
	c.statuses[st.AccountID] = &st
	c.mu.Unlock()

	c.notify(st)
}

// notify invokes the notifier outside the status lock.
func (c *Coordinator) notify(st SyncStatus) {
	if c.notifier != nil {
		c.notifier(st)
	}
}

// recordRun appends a sync history row. History is best-effort
// observability; failures are logged, never propagated.
func (c *Coordinator) recordRun(ctx context.Context, run model.SyncRun) {
	run.ID = uuid.New().String()
	if err := c.store.CreateSyncRun(ctx, run); err != nil {
		slog.Error("sync: recording run", "account", run.AccountID, "error", err)
	}
}

// sleep waits for d or until the context is done.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ChatID builds the canonical chat identifier
// "{service}-{accountID}-{remoteChatID}".
func ChatID(svc model.Service, accountID, remoteID string) string {
	return fmt.Sprintf("%s-%s-%s", svc, accountID, remoteID)
}

// joinBlankLines concatenates message contents separated by blank lines.
func joinBlankLines(parts []string) string {
	return strings.Join(parts, "\n\n")
}
