package events

import "encoding/json"
import nanoid "github.com/matoous/go-nanoid/v2"

// Outbound command types.
const (
	TypeSessionUpdate            = "session.update"
	TypeInputAudioBufferAppend   = "input_audio_buffer.append"
	TypeInputAudioBufferCommit   = "input_audio_buffer.commit"
	TypeInputAudioBufferClear    = "input_audio_buffer.clear"
	TypeConversationItemCreate   = "conversation.item.create"
	TypeConversationItemTruncate = "conversation.item.truncate"
	TypeConversationItemDelete   = "conversation.item.delete"
	TypeResponseCreate           = "response.create"
	TypeResponseCancel           = "response.cancel"
)

// Inbound event types.
const (
	TypeError = "error"

	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"

	TypeConversationCreated       = "conversation.created"
	TypeConversationItemCreated   = "conversation.item.created"
	TypeConversationItemTruncated = "conversation.item.truncated"
	TypeConversationItemDeleted   = "conversation.item.deleted"

	TypeInputAudioBufferCommitted     = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared       = "input_audio_buffer.cleared"
	TypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	TypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	TypeResponseCreated          = "response.created"
	TypeResponseDone             = "response.done"
	TypeResponseOutputItemAdded  = "response.output_item.added"
	TypeResponseOutputItemDone   = "response.output_item.done"
	TypeResponseContentPartAdded = "response.content_part.added"
	TypeResponseContentPartDone  = "response.content_part.done"

	TypeResponseTextDelta                  = "response.text.delta"
	TypeResponseTextDone                   = "response.text.done"
	TypeResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone        = "response.audio_transcript.done"
	TypeResponseAudioDelta                 = "response.audio.delta"
	TypeResponseAudioDone                  = "response.audio.done"
	TypeResponseFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	TypeResponseFunctionCallArgumentsDone  = "response.function_call_arguments.done"

	TypeRateLimitsUpdated = "rate_limits.updated"
)

// BaseEvent is the envelope header shared by every command and event.
type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
