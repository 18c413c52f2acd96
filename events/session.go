package events

import "github.com/voicewire/realtime-go/tool"

type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// MaxTokensUnbounded is the wire value for an uncapped response length.
const MaxTokensUnbounded = "inf"

// Session is the upstream's view of one negotiated engagement, echoed back
// in session.created and session.updated.
type Session struct {
	ID                      string                   `json:"id,omitempty"`
	Object                  string                   `json:"object,omitempty"`
	ExpiresAt               int64                    `json:"expires_at,omitempty"`
	Model                   string                   `json:"model,omitempty"`
	Modalities              []Modality               `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
	MaxResponseOutputTokens any                      `json:"max_response_output_tokens,omitempty"`
	Speed                   float64                  `json:"speed,omitempty"`
	ToolChoice              string                   `json:"tool_choice,omitempty"`
	Tools                   []tool.Tool              `json:"tools,omitempty"`
}

// SessionUpdate is the client-settable subset of Session, carried by the
// session.update command. Zero-valued fields are omitted so partial updates
// leave upstream defaults untouched.
type SessionUpdate struct {
	Model                   string                   `json:"model,omitempty"`
	Modalities              []Modality               `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
	MaxResponseOutputTokens any                      `json:"max_response_output_tokens,omitempty"`
	Speed                   float64                  `json:"speed,omitempty"`
	ToolChoice              tool.Choice              `json:"tool_choice,omitempty"`
	Tools                   []tool.Tool              `json:"tools,omitempty"`
}

// InputAudioTranscription selects the speech-to-text model applied to user
// audio.
type InputAudioTranscription struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// TurnDetection holds the VAD configuration. A nil TurnDetection in a
// SessionUpdate leaves the upstream default; NoTurnDetection turns server
// VAD off entirely.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}

func NoTurnDetection() *TurnDetection {
	return &TurnDetection{Type: "none"}
}

func ServerVAD(threshold float64, prefixPaddingMs, silenceDurationMs int) *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         threshold,
		PrefixPaddingMs:   prefixPaddingMs,
		SilenceDurationMs: silenceDurationMs,
		CreateResponse:    true,
		InterruptResponse: true,
	}
}
