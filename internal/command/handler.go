package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/search"
	"github.com/nhle/chat-search/internal/store"
	"github.com/nhle/chat-search/internal/sync"
)

// Handler dispatches the command surface consumed by the UI collaborator.
// Handle always resolves: failures come back in the response's Error
// field, never as a raised error or panic across the boundary.
type Handler struct {
	store       store.Store
	engine      *search.Engine
	coordinator *sync.Coordinator
}

// NewHandler creates a command handler.
func NewHandler(
	s store.Store,
	engine *search.Engine,
	coordinator *sync.Coordinator,
) *Handler {
	return &Handler{
		store:       s,
		engine:      engine,
		coordinator: coordinator,
	}
}

// Handle executes one command and returns its response.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command: panic", "type", req.Type, "panic", r)
			resp = errorResponse(fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch req.Type {
	case TypeSyncAccount:
		return h.syncAccount(ctx, req)
	case TypeSyncAll:
		return h.syncAll(ctx)
	case TypeGetAccounts:
		return h.getAccounts(ctx)
	case TypeGetSyncStatus:
		return h.getSyncStatus()
	case TypeGetSyncRuns:
		return h.getSyncRuns(ctx, req)
	case TypeSearch:
		return h.search(ctx, req)
	case TypeDeleteAccount:
		return h.deleteAccount(ctx, req)
	case TypeAccountDetected:
		return h.accountDetected(ctx, req)
	default:
		return errorResponse(fmt.Sprintf("unknown command type %q", req.Type))
	}
}

func (h *Handler) syncAccount(ctx context.Context, req Request) Response {
	if req.AccountID == "" {
		return errorResponse("account_id is required")
	}
	if err := h.coordinator.SyncAccount(ctx, req.AccountID); err != nil {
		return errorResponse(err.Error())
	}
	return Response{Success: true}
}

func (h *Handler) syncAll(ctx context.Context) Response {
	if err := h.coordinator.SyncAll(ctx); err != nil {
		return errorResponse(err.Error())
	}
	return Response{Success: true}
}

func (h *Handler) getAccounts(ctx context.Context) Response {
	accounts, err := h.store.GetAllAccounts(ctx)
	if err != nil {
		return errorResponse(err.Error())
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return Response{Success: true, Accounts: accounts}
}

func (h *Handler) getSyncStatus() Response {
	return Response{Success: true, Statuses: h.coordinator.Statuses()}
}

func (h *Handler) getSyncRuns(ctx context.Context, req Request) Response {
	if req.AccountID == "" {
		return errorResponse("account_id is required")
	}
	runs, err := h.store.GetSyncRuns(ctx, req.AccountID, req.Limit)
	if err != nil {
		return errorResponse(err.Error())
	}
	return Response{Success: true, Runs: runs}
}

func (h *Handler) search(ctx context.Context, req Request) Response {
	results, err := h.engine.Search(ctx, req.Query, req.AccountIDs)
	if err != nil {
		return errorResponse(err.Error())
	}
	if results == nil {
		results = []search.SearchResult{}
	}
	return Response{Success: true, Results: results}
}

// deleteAccount removes the account and its chats, forgets its sync
// status, and forces a full index rebuild.
func (h *Handler) deleteAccount(ctx context.Context, req Request) Response {
	if req.AccountID == "" {
		return errorResponse("account_id is required")
	}
	if err := h.store.DeleteAccount(ctx, req.AccountID); err != nil {
		return errorResponse(err.Error())
	}

	h.coordinator.ClearStatus(req.AccountID)

	if err := h.engine.Rebuild(ctx); err != nil {
		return errorResponse(err.Error())
	}
	return Response{Success: true}
}

// accountDetected upserts a detected account, preserving the sync
// bookkeeping of an existing record, and kicks off a first sync in the
// background for accounts that have never synced.
func (h *Handler) accountDetected(ctx context.Context, req Request) Response {
	svc := model.Service(req.Service)
	if svc != model.ServiceClaude && svc != model.ServiceChatGPT {
		return errorResponse(fmt.Sprintf("unknown service %q", req.Service))
	}
	if req.RemoteID == "" {
		return errorResponse("remote_id is required")
	}

	id := fmt.Sprintf("%s-%s", svc, req.RemoteID)

	existing, err := h.store.GetAccount(ctx, id)
	if err != nil {
		return errorResponse(err.Error())
	}

	account := model.Account{
		ID:          id,
		Service:     svc,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		OrgID:       req.OrgID,
	}
	if existing != nil {
		account.LastSynced = existing.LastSynced
		account.ChatCount = existing.ChatCount
	}

	if err := h.store.SaveAccount(ctx, account); err != nil {
		return errorResponse(err.Error())
	}

	slog.Info("command: account detected",
		"account", id, "display_name", req.DisplayName)

	if account.LastSynced == 0 {
		go func() {
			if err := h.coordinator.SyncAccount(context.Background(), id); err != nil {
				slog.Error("command: initial sync", "account", id, "error", err)
			}
		}()
	}

	return Response{Success: true}
}
