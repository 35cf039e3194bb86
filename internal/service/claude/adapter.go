package claude

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/service"
)

// Adapter implements service.Service for claude.ai. Conversations are
// addressed under the account's organization, so one adapter is built
// per account.
type Adapter struct {
	client *Client
	orgID  string
}

// NewAdapter creates a claude.ai adapter for the given organization.
// An empty baseURL selects the production API root.
func NewAdapter(baseURL, orgID string) *Adapter {
	return &Adapter{
		client: NewClient(baseURL),
		orgID:  orgID,
	}
}

// Type returns the service identifier for claude.ai.
func (a *Adapter) Type() model.Service {
	return model.ServiceClaude
}

// FetchConversationList retrieves the account's conversation list. The
// endpoint returns the complete list in one response.
func (a *Adapter) FetchConversationList(
	ctx context.Context,
	creds service.Credentials,
) ([]service.Conversation, error) {
	path := fmt.Sprintf("/organizations/%s/chat_conversations", a.orgID)

	var conversations []Conversation
	if err := a.client.Get(ctx, creds, path, &conversations); err != nil {
		return nil, fmt.Errorf("fetching claude conversations: %w", err)
	}

	list := make([]service.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		list = append(list, service.Conversation{
			RemoteID:  conv.UUID,
			Title:     conv.Name,
			CreatedAt: parseISOMillis(conv.CreatedAt),
			UpdatedAt: parseISOMillis(conv.UpdatedAt),
		})
	}

	return list, nil
}

// FetchConversationDetail retrieves one conversation and normalizes its
// flat message history into canonical messages.
func (a *Adapter) FetchConversationDetail(
	ctx context.Context,
	creds service.Credentials,
	remoteID string,
) (*service.ConversationDetail, error) {
	path := fmt.Sprintf(
		"/organizations/%s/chat_conversations/%s", a.orgID, remoteID,
	)

	var detail ConversationDetail
	if err := a.client.Get(ctx, creds, path, &detail); err != nil {
		return nil, fmt.Errorf(
			"fetching claude conversation %s: %w", remoteID, err,
		)
	}

	messages := make([]model.Message, 0, len(detail.ChatMessages))
	for _, msg := range detail.ChatMessages {
		role := model.RoleAssistant
		if msg.Sender == "human" {
			role = model.RoleUser
		}
		messages = append(messages, model.Message{
			Role:      role,
			Content:   msg.Text,
			Timestamp: parseISOMillis(msg.CreatedAt),
		})
	}

	title := detail.Name
	if title == "" {
		title = "Untitled"
	}

	return &service.ConversationDetail{
		Title:     title,
		CreatedAt: parseISOMillis(detail.CreatedAt),
		UpdatedAt: parseISOMillis(detail.UpdatedAt),
		Messages:  messages,
		URL:       "https://claude.ai/chat/" + remoteID,
	}, nil
}

// parseISOMillis parses an ISO-8601 timestamp into unix milliseconds.
// Returns 0 when the string is empty or unparseable.
func parseISOMillis(s string) int64 {
	if s == "" {
		return 0
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000000-07:00",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}

	return 0
}
