package command

import (
	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/search"
	"github.com/nhle/chat-search/internal/sync"
)

// Command types accepted by the handler.
const (
	TypeSyncAccount     = "SYNC_ACCOUNT"
	TypeSyncAll         = "SYNC_ALL"
	TypeGetAccounts     = "GET_ACCOUNTS"
	TypeGetSyncStatus   = "GET_SYNC_STATUS"
	TypeGetSyncRuns     = "GET_SYNC_RUNS"
	TypeSearch          = "SEARCH"
	TypeDeleteAccount   = "DELETE_ACCOUNT"
	TypeAccountDetected = "ACCOUNT_DETECTED"
)

// Request is one command from the UI collaborator. Type selects the
// command; the remaining fields are its payload, used per command.
type Request struct {
	Type string `json:"type"`

	// AccountID addresses one account (SYNC_ACCOUNT, DELETE_ACCOUNT,
	// GET_SYNC_RUNS).
	AccountID string `json:"account_id,omitempty"`

	// Query and AccountIDs parameterize SEARCH.
	Query      string   `json:"query,omitempty"`
	AccountIDs []string `json:"account_ids,omitempty"`

	// Limit caps GET_SYNC_RUNS results.
	Limit int `json:"limit,omitempty"`

	// Account detection payload (ACCOUNT_DETECTED).
	Service     string `json:"service,omitempty"`
	RemoteID    string `json:"remote_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	OrgID       string `json:"org_id,omitempty"`
}

// Response is the reply for one command. Exactly the fields relevant to
// the command are populated; Error is set instead of failing the call.
type Response struct {
	Success  bool                       `json:"success"`
	Accounts []model.Account            `json:"accounts,omitempty"`
	Statuses map[string]sync.SyncStatus `json:"statuses,omitempty"`
	Runs     []model.SyncRun            `json:"runs,omitempty"`
	Results  []search.SearchResult      `json:"results,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// errorResponse builds a failed Response with the given message.
func errorResponse(msg string) Response {
	return Response{Error: msg}
}
