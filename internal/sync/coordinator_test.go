package sync_test

import (
	"context"
	"errors"
	"reflect"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/search"
	"github.com/nhle/chat-search/internal/service"
	"github.com/nhle/chat-search/internal/store"
	syncpkg "github.com/nhle/chat-search/internal/sync"
	"github.com/nhle/chat-search/tests/testutil"
)

// fakeAdapter is an in-memory service.Service with scriptable failures.
type fakeAdapter struct {
	svc     model.Service
	list    []service.Conversation
	details map[string]*service.ConversationDetail

	listErr    error
	detailErrs map[string]error

	// listGate, when set, blocks FetchConversationList until closed.
	listGate chan struct{}

	mu          gosync.Mutex
	listCalls   int
	detailCalls []string
}

func (f *fakeAdapter) Type() model.Service { return f.svc }

func (f *fakeAdapter) FetchConversationList(
	ctx context.Context,
	creds service.Credentials,
) ([]service.Conversation, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeAdapter) FetchConversationDetail(
	ctx context.Context,
	creds service.Credentials,
	remoteID string,
) (*service.ConversationDetail, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, remoteID)
	f.mu.Unlock()

	if err := f.detailErrs[remoteID]; err != nil {
		return nil, err
	}
	detail, ok := f.details[remoteID]
	if !ok {
		return nil, &service.NotFoundError{Kind: "conversation", ID: remoteID}
	}
	return detail, nil
}

func (f *fakeAdapter) fetchedDetails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detailCalls...)
}

func (f *fakeAdapter) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func conversation(remoteID, title string, updatedAt int64) service.Conversation {
	return service.Conversation{
		RemoteID:  remoteID,
		Title:     title,
		CreatedAt: updatedAt - 10,
		UpdatedAt: updatedAt,
	}
}

func detail(title string, updatedAt int64, contents ...string) *service.ConversationDetail {
	messages := make([]model.Message, len(contents))
	for i, content := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		messages[i] = model.Message{Role: role, Content: content, Timestamp: updatedAt}
	}
	return &service.ConversationDetail{
		Title:     title,
		CreatedAt: updatedAt - 10,
		UpdatedAt: updatedAt,
		Messages:  messages,
		URL:       "https://claude.ai/chat/x",
	}
}

func staticCreds(creds service.Credentials) syncpkg.CredentialFunc {
	return func(model.Service) (service.Credentials, error) {
		return creds, nil
	}
}

func newCoordinator(
	t *testing.T,
	adapter *fakeAdapter,
	creds syncpkg.CredentialSource,
	notifier syncpkg.Notifier,
) (*syncpkg.Coordinator, store.Store) {
	t.Helper()

	s := testutil.NewTestStore(t)
	engine := search.NewEngine(s)
	factory := func(account *model.Account) (service.Service, error) {
		return adapter, nil
	}

	c := syncpkg.NewCoordinator(s, engine, creds, factory, notifier)
	c.SetItemDelay(0)
	return c, s
}

func saveAccount(t *testing.T, s store.Store, account model.Account) {
	t.Helper()
	if err := s.SaveAccount(context.Background(), account); err != nil {
		t.Fatalf("saving account: %v", err)
	}
}

func TestSyncAccountPersistsChats(t *testing.T) {
	adapter := &fakeAdapter{
		svc: model.ServiceClaude,
		list: []service.Conversation{
			conversation("r1", "First", 1000),
			conversation("r2", "Second", 2000),
		},
		details: map[string]*service.ConversationDetail{
			"r1": detail("First", 1000, "question one", "answer one"),
			"r2": detail("Second", 2000, "question two"),
		},
	}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)
	ctx := context.Background()

	account := model.Account{ID: "claude-org1", Service: model.ServiceClaude}
	saveAccount(t, s, account)

	if err := c.SyncAccount(ctx, "claude-org1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chats, err := s.GetChatsByAccount(ctx, "claude-org1")
	if err != nil {
		t.Fatalf("loading chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}

	chat, err := s.GetChat(ctx, syncpkg.ChatID(model.ServiceClaude, "claude-org1", "r1"))
	if err != nil || chat == nil {
		t.Fatalf("expected chat by canonical id, got %v / %v", chat, err)
	}
	if chat.FullText != "question one\n\nanswer one" {
		t.Errorf("unexpected full text %q", chat.FullText)
	}
	if chat.ChatID != "r1" || chat.AccountID != "claude-org1" {
		t.Errorf("unexpected chat identity %q / %q", chat.ChatID, chat.AccountID)
	}

	updated, err := s.GetAccount(ctx, "claude-org1")
	if err != nil || updated == nil {
		t.Fatalf("loading account: %v", err)
	}
	if updated.LastSynced == 0 {
		t.Error("expected LastSynced to be set")
	}
	if updated.ChatCount != 2 {
		t.Errorf("expected ChatCount 2, got %d", updated.ChatCount)
	}

	st, ok := c.Status("claude-org1")
	if !ok || st.Status != syncpkg.StatusIdle {
		t.Errorf("expected idle status, got %+v", st)
	}
	if st.LastSynced != updated.LastSynced {
		t.Errorf("status LastSynced %d != account %d", st.LastSynced, updated.LastSynced)
	}

	runs, err := s.GetSyncRuns(ctx, "claude-org1", 10)
	if err != nil {
		t.Fatalf("loading sync runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 sync run, got %d", len(runs))
	}
	if runs[0].Synced != 2 || runs[0].Total != 2 || runs[0].Error != "" {
		t.Errorf("unexpected sync run %+v", runs[0])
	}
}

func TestSyncAccountIncremental(t *testing.T) {
	adapter := &fakeAdapter{
		svc: model.ServiceClaude,
		list: []service.Conversation{
			conversation("unchanged", "Same", 500),
			conversation("stale", "Updated", 900),
			conversation("new", "Brand new", 300),
		},
		details: map[string]*service.ConversationDetail{
			"stale": detail("Updated", 900, "newer content"),
			"new":   detail("Brand new", 300, "hello"),
		},
	}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	// Local copies: one current (equal timestamp), one behind the remote.
	for remoteID, updatedAt := range map[string]int64{"unchanged": 500, "stale": 700} {
		chat := model.Chat{
			ID:        syncpkg.ChatID(model.ServiceClaude, "acc", remoteID),
			Service:   model.ServiceClaude,
			AccountID: "acc",
			ChatID:    remoteID,
			UpdatedAt: updatedAt,
		}
		if err := s.SaveChat(ctx, chat); err != nil {
			t.Fatalf("seeding chat: %v", err)
		}
	}

	if err := c.SyncAccount(ctx, "acc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetched := adapter.fetchedDetails()
	if !reflect.DeepEqual(fetched, []string{"stale", "new"}) {
		t.Fatalf("expected only changed conversations fetched, got %v", fetched)
	}

	// Resync with nothing changed remotely fetches no details at all.
	if err := c.SyncAccount(ctx, "acc"); err != nil {
		t.Fatalf("unexpected error on resync: %v", err)
	}
	if fetched := adapter.fetchedDetails(); len(fetched) != 2 {
		t.Errorf("resync should fetch nothing, got %v", fetched)
	}
}

func TestSyncAccountSkipsFailedConversations(t *testing.T) {
	adapter := &fakeAdapter{
		svc: model.ServiceClaude,
		list: []service.Conversation{
			conversation("bad", "Broken", 1000),
			conversation("good", "Fine", 2000),
		},
		details: map[string]*service.ConversationDetail{
			"good": detail("Fine", 2000, "content"),
		},
		detailErrs: map[string]error{
			"bad": &service.NetworkError{Service: model.ServiceClaude, StatusCode: 500},
		},
	}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	if err := c.SyncAccount(ctx, "acc"); err != nil {
		t.Fatalf("per-conversation failure must not abort the sync: %v", err)
	}

	chats, err := s.GetChatsByAccount(ctx, "acc")
	if err != nil {
		t.Fatalf("loading chats: %v", err)
	}
	if len(chats) != 1 || chats[0].ChatID != "good" {
		t.Fatalf("expected only the good conversation persisted, got %+v", chats)
	}

	runs, err := s.GetSyncRuns(ctx, "acc", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected 1 sync run, got %v / %v", runs, err)
	}
	if runs[0].Synced != 1 || runs[0].Total != 2 {
		t.Errorf("expected 1/2 synced, got %d/%d", runs[0].Synced, runs[0].Total)
	}
}

func TestSyncAccountMissingAccount(t *testing.T) {
	adapter := &fakeAdapter{svc: model.ServiceClaude}
	c, _ := newCoordinator(t, adapter, staticCreds("cookie"), nil)

	err := c.SyncAccount(context.Background(), "ghost")
	if !service.IsNotFoundError(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	st, ok := c.Status("ghost")
	if !ok || st.Status != syncpkg.StatusError {
		t.Errorf("expected error status, got %+v", st)
	}
}

func TestSyncAccountMissingCredentials(t *testing.T) {
	adapter := &fakeAdapter{svc: model.ServiceClaude}
	c, s := newCoordinator(t, adapter, staticCreds(""), nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	err := c.SyncAccount(ctx, "acc")
	if !service.IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}

	st, ok := c.Status("acc")
	if !ok || st.Status != syncpkg.StatusError || st.Error == "" {
		t.Errorf("expected error status with message, got %+v", st)
	}

	runs, err := s.GetSyncRuns(ctx, "acc", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected failed run recorded, got %v / %v", runs, err)
	}
	if runs[0].Error == "" {
		t.Error("expected run error to be recorded")
	}
}

func TestSyncAccountListFailure(t *testing.T) {
	adapter := &fakeAdapter{
		svc:     model.ServiceClaude,
		listErr: &service.NetworkError{Service: model.ServiceClaude, StatusCode: 502},
	}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	err := c.SyncAccount(context.Background(), "acc")
	if !service.IsNetworkError(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}

	st, ok := c.Status("acc")
	if !ok || st.Status != syncpkg.StatusError {
		t.Errorf("expected error status, got %+v", st)
	}
}

func TestSyncAccountSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		svc:      model.ServiceClaude,
		listGate: gate,
	}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	done := make(chan error, 1)
	go func() {
		done <- c.SyncAccount(ctx, "acc")
	}()

	// Wait for the first sync to claim the account.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if st, ok := c.Status("acc"); ok && st.Status == syncpkg.StatusSyncing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first sync never reached syncing state")
		}
		time.Sleep(time.Millisecond)
	}

	// A concurrent call for the same account is a silent no-op.
	if err := c.SyncAccount(ctx, "acc"); err != nil {
		t.Fatalf("concurrent sync should no-op, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	if calls := adapter.listCallCount(); calls != 1 {
		t.Errorf("expected a single list fetch, got %d", calls)
	}
}

func TestSyncAccountNotifierTransitions(t *testing.T) {
	adapter := &fakeAdapter{
		svc:  model.ServiceClaude,
		list: []service.Conversation{conversation("r1", "Only", 1000)},
		details: map[string]*service.ConversationDetail{
			"r1": detail("Only", 1000, "content"),
		},
	}

	var (
		mu       gosync.Mutex
		observed []string
	)
	notifier := func(st syncpkg.SyncStatus) {
		mu.Lock()
		observed = append(observed, st.Status)
		mu.Unlock()
	}

	c, s := newCoordinator(t, adapter, staticCreds("cookie"), notifier)
	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})

	if err := c.SyncAccount(context.Background(), "acc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) < 2 {
		t.Fatalf("expected at least start and finish notifications, got %v", observed)
	}
	if observed[0] != syncpkg.StatusSyncing {
		t.Errorf("expected first notification to be syncing, got %q", observed[0])
	}
	if observed[len(observed)-1] != syncpkg.StatusIdle {
		t.Errorf("expected last notification to be idle, got %q", observed[len(observed)-1])
	}
}

func TestSyncAllJoinsFailures(t *testing.T) {
	adapter := &fakeAdapter{
		svc:  model.ServiceClaude,
		list: []service.Conversation{conversation("r1", "Only", 1000)},
		details: map[string]*service.ConversationDetail{
			"r1": detail("Only", 1000, "content"),
		},
	}

	// Credentials exist for claude only; the chatgpt account fails.
	creds := syncpkg.CredentialFunc(func(svc model.Service) (service.Credentials, error) {
		if svc == model.ServiceClaude {
			return "cookie", nil
		}
		return "", errors.New("keyring unavailable")
	})

	c, s := newCoordinator(t, adapter, creds, nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "good", Service: model.ServiceClaude})
	saveAccount(t, s, model.Account{ID: "bad", Service: model.ServiceChatGPT})

	err := c.SyncAll(ctx)
	if err == nil {
		t.Fatal("expected the failing account's error to surface")
	}

	if st, ok := c.Status("good"); !ok || st.Status != syncpkg.StatusIdle {
		t.Errorf("expected good account to finish, got %+v", st)
	}
	if st, ok := c.Status("bad"); !ok || st.Status != syncpkg.StatusError {
		t.Errorf("expected bad account in error state, got %+v", st)
	}

	chats, err := s.GetChatsByAccount(ctx, "good")
	if err != nil || len(chats) != 1 {
		t.Errorf("expected good account synced, got %v / %v", chats, err)
	}
}

func TestClearStatus(t *testing.T) {
	adapter := &fakeAdapter{svc: model.ServiceClaude}
	c, s := newCoordinator(t, adapter, staticCreds("cookie"), nil)
	ctx := context.Background()

	saveAccount(t, s, model.Account{ID: "acc", Service: model.ServiceClaude})
	if err := c.SyncAccount(ctx, "acc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Status("acc"); !ok {
		t.Fatal("expected tracked status after sync")
	}

	c.ClearStatus("acc")
	if _, ok := c.Status("acc"); ok {
		t.Error("expected status to be cleared")
	}
}

func TestChatID(t *testing.T) {
	got := syncpkg.ChatID(model.ServiceClaude, "claude-org1", "abc-123")
	if got != "claude-claude-org1-abc-123" {
		t.Errorf("unexpected chat id %q", got)
	}
}
