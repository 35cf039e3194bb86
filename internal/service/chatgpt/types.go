package chatgpt

// Conversation is one entry of the paginated conversation list response.
// Timestamps are unix seconds.
type Conversation struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	CreateTime float64 `json:"create_time"`
	UpdateTime float64 `json:"update_time"`
}

// ConversationList is one page of the conversation list.
type ConversationList struct {
	Items  []Conversation `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Author identifies who produced a message node.
type Author struct {
	Role string `json:"role"`
}

// Content holds a message's payload parts.
type Content struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

// NodeMessage is the message attached to a mapping node, when present.
type NodeMessage struct {
	ID         string  `json:"id"`
	Author     Author  `json:"author"`
	Content    Content `json:"content"`
	CreateTime float64 `json:"create_time"`
}

// Node is one entry of the conversation mapping. The mapping is a DAG
// keyed by node id; the root is the node with no parent.
type Node struct {
	Message  *NodeMessage `json:"message"`
	Parent   string       `json:"parent"`
	Children []string     `json:"children"`
}

// ConversationDetail is the full conversation response. Messages live in
// the Mapping tree, not in a flat list.
type ConversationDetail struct {
	Title      string          `json:"title"`
	CreateTime float64         `json:"create_time"`
	UpdateTime float64         `json:"update_time"`
	Mapping    map[string]Node `json:"mapping"`
}
