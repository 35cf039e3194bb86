package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/chat-search/internal/model"
)

// AuthError indicates there are no usable credentials for a service, or
// that the remote rejected them. It is returned by service clients when a
// 401/403 response is received or when no session cookie is available.
type AuthError struct {
	Service model.Service
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Service, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// NetworkError indicates a non-success HTTP status or a transport failure
// while talking to a remote service.
type NetworkError struct {
	Service    model.Service
	StatusCode int
	Message    string
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error (%s, status %d): %s",
			e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("network error (%s): %s", e.Service, e.Message)
}

// IsNetworkError reports whether err is a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// NotFoundError indicates an operation referenced an unknown account
// or chat.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFoundError reports whether err is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// MalformedDataError indicates a remote response was missing an expected
// field, e.g. a conversation tree with no root node.
type MalformedDataError struct {
	Service model.Service
	Message string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed data (%s): %s", e.Service, e.Message)
}

// IsMalformedDataError reports whether err is a MalformedDataError.
func IsMalformedDataError(err error) bool {
	var mdErr *MalformedDataError
	return errors.As(err, &mdErr)
}

// Credentials is the opaque session credential header for a service. The
// core never acquires it; the external collaborator that does hands it in
// as a single string.
type Credentials string

// Conversation is one entry of a remote conversation list, before the
// detail fetch. Timestamps are unix milliseconds.
type Conversation struct {
	RemoteID  string
	Title     string
	CreatedAt int64
	UpdatedAt int64
}

// ConversationDetail holds the normalized fields of one fetched
// conversation. Timestamps are unix milliseconds.
type ConversationDetail struct {
	Title     string
	CreatedAt int64
	UpdatedAt int64
	Messages  []model.Message
	URL       string
}

// Service defines the contract every remote chat service adapter must
// implement. Implementations are selected by the account's service tag.
type Service interface {
	// Type returns the service identifier.
	Type() model.Service

	// FetchConversationList retrieves the full remote conversation
	// list, paginating to the end where the service paginates.
	FetchConversationList(
		ctx context.Context,
		creds Credentials,
	) ([]Conversation, error)

	// FetchConversationDetail retrieves one conversation with its
	// messages, normalized into the canonical shape. A failure here is
	// a per-conversation error the caller may skip.
	FetchConversationDetail(
		ctx context.Context,
		creds Credentials,
		remoteID string,
	) (*ConversationDetail, error)
}
