package events

import nanoid "github.com/matoous/go-nanoid/v2"

// Conversation identifies the upstream-owned item log. The client never
// mirrors the log itself; upstream is the source of truth.
type Conversation struct {
	ID     string `json:"id,omitempty"`
	Object string `json:"object,omitempty"`
}

type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationItem is the inner "item" object of conversation.item.* events.
type ConversationItem struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Type    ItemType      `json:"type"`
	Status  string        `json:"status,omitempty"`
	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Function-call fields, set when Type is function_call or
	// function_call_output.
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// TextItem builds a user text message item with a fresh id.
func TextItem(role Role, text string) ConversationItem {
	id, _ := nanoid.New()
	return ConversationItem{
		ID:      id,
		Type:    ItemTypeMessage,
		Role:    role,
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}
}

// FunctionCallOutputItem builds the result item answering a function_call.
func FunctionCallOutputItem(callID, output string) ConversationItem {
	id, _ := nanoid.New()
	return ConversationItem{
		ID:     id,
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	}
}
