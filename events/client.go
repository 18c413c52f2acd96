package events

// Outbound commands. Each constructor stamps a fresh event id so upstream
// error events can be correlated back to the command that caused them.

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

func NewSessionUpdateEvent(s SessionUpdate) SessionUpdateEvent {
	return SessionUpdateEvent{BaseEvent: NewBaseEvent(TypeSessionUpdate), Session: s}
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppendEvent(pcm []byte) InputAudioBufferAppendEvent {
	return InputAudioBufferAppendEvent{
		BaseEvent: NewBaseEvent(TypeInputAudioBufferAppend),
		Audio:     EncodeAudio(pcm),
	}
}

type InputAudioBufferCommitEvent struct {
	BaseEvent
}

func NewInputAudioBufferCommitEvent() InputAudioBufferCommitEvent {
	return InputAudioBufferCommitEvent{BaseEvent: NewBaseEvent(TypeInputAudioBufferCommit)}
}

type InputAudioBufferClearEvent struct {
	BaseEvent
}

func NewInputAudioBufferClearEvent() InputAudioBufferClearEvent {
	return InputAudioBufferClearEvent{BaseEvent: NewBaseEvent(TypeInputAudioBufferClear)}
}

type ConversationItemCreateEvent struct {
	BaseEvent
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

func NewConversationItemCreateEvent(item ConversationItem, previousItemID string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		BaseEvent:      NewBaseEvent(TypeConversationItemCreate),
		PreviousItemID: previousItemID,
		Item:           item,
	}
}

type ConversationItemTruncateEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func NewConversationItemTruncateEvent(itemID string, contentIndex, audioEndMs int) ConversationItemTruncateEvent {
	return ConversationItemTruncateEvent{
		BaseEvent:    NewBaseEvent(TypeConversationItemTruncate),
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	}
}

type ConversationItemDeleteEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

func NewConversationItemDeleteEvent(itemID string) ConversationItemDeleteEvent {
	return ConversationItemDeleteEvent{
		BaseEvent: NewBaseEvent(TypeConversationItemDelete),
		ItemID:    itemID,
	}
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

func NewResponseCreateEvent(p ResponseCreatePayload) ResponseCreateEvent {
	return ResponseCreateEvent{BaseEvent: NewBaseEvent(TypeResponseCreate), Response: p}
}

type ResponseCancelEvent struct {
	BaseEvent
	ResponseID string `json:"response_id,omitempty"`
}

func NewResponseCancelEvent(responseID string) ResponseCancelEvent {
	return ResponseCancelEvent{BaseEvent: NewBaseEvent(TypeResponseCancel), ResponseID: responseID}
}
