package events

import "encoding/base64"

// EncodeAudio encodes raw audio bytes into the wire representation used by
// input_audio_buffer.append and the audio delta events.
func EncodeAudio(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeAudio is the inverse of EncodeAudio.
func DecodeAudio(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
