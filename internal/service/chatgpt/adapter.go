package chatgpt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/service"
)

const defaultPageSize = 100

// defaultPageDelay is the courtesy delay between list pages. The backend
// throttles aggressive clients by IP, so this is not optional.
const defaultPageDelay = 200 * time.Millisecond

// Adapter implements service.Service for chatgpt.com.
type Adapter struct {
	client    *Client
	pageSize  int
	pageDelay time.Duration
}

// NewAdapter creates a chatgpt.com adapter. An empty baseURL selects the
// production API root.
func NewAdapter(baseURL string) *Adapter {
	return &Adapter{
		client:    NewClient(baseURL),
		pageSize:  defaultPageSize,
		pageDelay: defaultPageDelay,
	}
}

// SetPaging overrides the list page size and inter-page delay. Values
// <= 0 keep the current setting.
func (a *Adapter) SetPaging(pageSize int, pageDelay time.Duration) {
	if pageSize > 0 {
		a.pageSize = pageSize
	}
	if pageDelay > 0 {
		a.pageDelay = pageDelay
	}
}

// Type returns the service identifier for chatgpt.com.
func (a *Adapter) Type() model.Service {
	return model.ServiceChatGPT
}

// FetchConversationList retrieves the full conversation list, walking the
// offset/limit pagination until a page comes back short.
func (a *Adapter) FetchConversationList(
	ctx context.Context,
	creds service.Credentials,
) ([]service.Conversation, error) {
	var all []service.Conversation
	offset := 0

	for {
		path := fmt.Sprintf(
			"/conversations?offset=%d&limit=%d", offset, a.pageSize,
		)

		var page ConversationList
		if err := a.client.Get(ctx, creds, path, &page); err != nil {
			return nil, fmt.Errorf("fetching chatgpt conversations: %w", err)
		}

		for _, conv := range page.Items {
			all = append(all, service.Conversation{
				RemoteID:  conv.ID,
				Title:     conv.Title,
				CreatedAt: secondsToMillis(conv.CreateTime),
				UpdatedAt: secondsToMillis(conv.UpdateTime),
			})
		}

		if len(page.Items) < a.pageSize {
			break
		}
		offset += a.pageSize

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pageDelay):
		}
	}

	return all, nil
}

// FetchConversationDetail retrieves one conversation and flattens its
// mapping tree into canonical messages in conversation order.
func (a *Adapter) FetchConversationDetail(
	ctx context.Context,
	creds service.Credentials,
	remoteID string,
) (*service.ConversationDetail, error) {
	path := "/conversation/" + remoteID

	var detail ConversationDetail
	if err := a.client.Get(ctx, creds, path, &detail); err != nil {
		return nil, fmt.Errorf(
			"fetching chatgpt conversation %s: %w", remoteID, err,
		)
	}

	messages, err := extractMessages(detail.Mapping)
	if err != nil {
		return nil, err
	}

	title := detail.Title
	if title == "" {
		title = "Untitled"
	}

	return &service.ConversationDetail{
		Title:     title,
		CreatedAt: secondsToMillis(detail.CreateTime),
		UpdatedAt: secondsToMillis(detail.UpdateTime),
		Messages:  messages,
		URL:       "https://chatgpt.com/c/" + remoteID,
	}, nil
}

// extractMessages flattens the mapping tree into conversation order with
// a depth-first walk from the root node. Only user/assistant messages
// with non-blank content are kept. A visited set guards against cycles in
// the mapping, so the walk visits each node at most once.
func extractMessages(mapping map[string]Node) ([]model.Message, error) {
	rootID := ""
	for id, node := range mapping {
		if node.Parent == "" {
			rootID = id
			break
		}
	}
	if rootID == "" {
		return nil, &service.MalformedDataError{
			Service: model.ServiceChatGPT,
			Message: "conversation mapping has no root node",
		}
	}

	var messages []model.Message
	visited := make(map[string]bool, len(mapping))

	var walk func(nodeID string)
	walk = func(nodeID string) {
		if visited[nodeID] {
			return
		}
		visited[nodeID] = true

		node, ok := mapping[nodeID]
		if !ok {
			return
		}

		if msg := node.Message; msg != nil {
			role := msg.Author.Role
			if (role == model.RoleUser || role == model.RoleAssistant) &&
				len(msg.Content.Parts) > 0 {
				content := strings.Join(msg.Content.Parts, "\n")
				if strings.TrimSpace(content) != "" {
					messages = append(messages, model.Message{
						Role:      role,
						Content:   content,
						Timestamp: secondsToMillis(msg.CreateTime),
					})
				}
			}
		}

		for _, childID := range node.Children {
			walk(childID)
		}
	}

	walk(rootID)

	return messages, nil
}

// secondsToMillis converts a unix-seconds float to unix milliseconds.
func secondsToMillis(seconds float64) int64 {
	return int64(seconds * 1000)
}
