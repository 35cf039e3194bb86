package model

// Service identifies the remote chat service an account or chat belongs to.
type Service string

const (
	ServiceClaude  Service = "claude"
	ServiceChatGPT Service = "chatgpt"
)

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// part of a persisted Chat; their order is the conversation order produced
// by the service adapter.
type Message struct {
	// Role is either RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text. Multi-part payloads are joined
	// by newlines before reaching this field.
	Content string `json:"content"`

	// Timestamp is when the message was created, in unix milliseconds.
	// Zero when the service did not provide one.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Chat is one normalized, locally stored conversation with its full
// message history. It is the canonical record all service adapters
// normalize into.
type Chat struct {
	// ID is "{service}-{accountID}-{remoteChatID}", globally unique.
	ID string `json:"id"`

	// Service identifies which remote service produced this chat.
	Service Service `json:"service"`

	// AccountID is the ID of the Account this chat belongs to.
	AccountID string `json:"account_id"`

	// ChatID is the conversation's identifier on the remote service.
	ChatID string `json:"chat_id"`

	// Title is the conversation title, "Untitled" when the remote
	// has none.
	Title string `json:"title"`

	// CreatedAt is the remote creation time in unix milliseconds.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the remote last-modified time in unix milliseconds.
	// Monotonically non-decreasing across syncs of the same chat.
	UpdatedAt int64 `json:"updated_at"`

	// Messages is the full conversation in order.
	Messages []Message `json:"messages"`

	// FullText is all message contents in order joined by blank lines.
	// This is the indexed body.
	FullText string `json:"full_text"`

	// URL links back to the conversation on the remote service.
	URL string `json:"url"`
}

// Account is a connected identity on one remote chat service.
type Account struct {
	// ID is "{service}-{remoteAccountID}", globally unique.
	ID string `json:"id"`

	// Service identifies the remote service.
	Service Service `json:"service"`

	// DisplayName is the account's human-readable label.
	DisplayName string `json:"display_name"`

	// Email is the account email, when known.
	Email string `json:"email,omitempty"`

	// OrgID is the organization identifier required by some services
	// to address their API (empty otherwise).
	OrgID string `json:"org_id,omitempty"`

	// LastSynced is the unix-millisecond time of the last successful
	// sync, 0 until the first one completes.
	LastSynced int64 `json:"last_synced"`

	// ChatCount is the remote conversation total observed at the last
	// list fetch, not merely the locally stored count.
	ChatCount int `json:"chat_count"`
}

// SyncRun is one recorded sync attempt for an account. Rows are appended
// by the sync coordinator when a run finishes, successfully or not.
type SyncRun struct {
	// ID is a generated UUID.
	ID string `json:"id"`

	// AccountID is the account that was synced.
	AccountID string `json:"account_id"`

	// StartedAt and FinishedAt are unix milliseconds.
	StartedAt  int64 `json:"started_at"`
	FinishedAt int64 `json:"finished_at"`

	// Synced is how many conversations were fetched and stored.
	Synced int `json:"synced"`

	// Total is how many conversations were selected for syncing.
	Total int `json:"total"`

	// Error holds the account-level failure message, empty on success.
	Error string `json:"error,omitempty"`
}
