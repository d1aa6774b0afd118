package wire

import (
	"encoding/json"
	"fmt"
)

// BackendEvent is a decoded event from the speech backend.
type BackendEvent interface {
	backendEvent()
}

// SessionReady acknowledges session creation or reconfiguration.
type SessionReady struct {
	Type string
}

// CallerTranscript is the completed transcription of a caller utterance.
type CallerTranscript struct {
	Transcript string
}

// AudioDelta carries one chunk of assistant audio for the in-flight utterance.
type AudioDelta struct {
	ItemID string
	Delta  string
}

// SpeechStarted signals that the caller began talking; while the assistant is
// responding this is the interruption cue.
type SpeechStarted struct{}

// FunctionCall is a completed function-call output item requested by the backend.
type FunctionCall struct {
	Name      string
	CallID    string
	Arguments string
}

// ResponseDone signals the end of the assistant's turn and carries the final
// assistant text.
type ResponseDone struct {
	Transcript string
}

// BackendError is an error event reported by the backend.
type BackendError struct {
	Message string
}

// UnknownBackend is any well-formed event with an unhandled type string.
type UnknownBackend struct {
	Type string
}

func (SessionReady) backendEvent()     {}
func (CallerTranscript) backendEvent() {}
func (AudioDelta) backendEvent()       {}
func (SpeechStarted) backendEvent()    {}
func (FunctionCall) backendEvent()     {}
func (ResponseDone) backendEvent()     {}
func (BackendError) backendEvent()     {}
func (UnknownBackend) backendEvent()   {}

type backendEnvelope struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Item       *struct {
		Type      string `json:"type"`
		Name      string `json:"name"`
		CallID    string `json:"call_id"`
		Arguments string `json:"arguments"`
	} `json:"item"`
	Response *struct {
		Output []struct {
			Content []struct {
				Transcript string `json:"transcript"`
			} `json:"content"`
		} `json:"output"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeBackend parses a raw backend event into a typed event. Malformed
// input yields an error for the caller to log and drop.
func DecodeBackend(raw []byte) (BackendEvent, error) {
	var env backendEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("backend event: %w", err)
	}
	switch env.Type {
	case "session.created", "session.updated":
		return SessionReady{Type: env.Type}, nil
	case "conversation.item.input_audio_transcription.completed":
		return CallerTranscript{Transcript: env.Transcript}, nil
	case "response.audio.delta", "response.output_audio.delta":
		return AudioDelta{ItemID: env.ItemID, Delta: env.Delta}, nil
	case "input_audio_buffer.speech_started":
		return SpeechStarted{}, nil
	case "response.output_item.done":
		if env.Item != nil && env.Item.Type == "function_call" {
			return FunctionCall{Name: env.Item.Name, CallID: env.Item.CallID, Arguments: env.Item.Arguments}, nil
		}
		return UnknownBackend{Type: env.Type}, nil
	case "response.done":
		ev := ResponseDone{}
		if env.Response != nil {
			for _, out := range env.Response.Output {
				for _, c := range out.Content {
					if c.Transcript != "" {
						ev.Transcript = c.Transcript
					}
				}
			}
		}
		return ev, nil
	case "error":
		ev := BackendError{}
		if env.Error != nil {
			ev.Message = env.Error.Message
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("backend event missing type field")
	default:
		return UnknownBackend{Type: env.Type}, nil
	}
}

// ToolDef describes one callable function advertised in the session handshake.
type ToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionConfig is the session.update payload sent once per backend connection.
type SessionConfig struct {
	Voice             string    `json:"voice"`
	Instructions      string    `json:"instructions"`
	InputAudioFormat  string    `json:"input_audio_format"`
	OutputAudioFormat string    `json:"output_audio_format"`
	Temperature       float64   `json:"temperature"`
	Modalities        []string  `json:"modalities"`
	Tools             []ToolDef `json:"tools,omitempty"`
	TurnDetection     struct {
		Type              string  `json:"type"`
		Threshold         float64 `json:"threshold"`
		PrefixPaddingMs   int     `json:"prefix_padding_ms"`
		SilenceDurationMs int     `json:"silence_duration_ms"`
	} `json:"turn_detection"`
	InputAudioTranscription struct {
		Model string `json:"model"`
	} `json:"input_audio_transcription"`
}

// SessionUpdate builds the configuration handshake message.
func SessionUpdate(cfg SessionConfig) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":    "session.update",
		"session": cfg,
	})
	return b
}

// AudioAppend builds an input audio chunk message. The payload stays opaque
// base64 end to end.
func AudioAppend(payload string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
	return b
}

// AudioCommit signals that the caller's current input is complete.
func AudioCommit() []byte {
	return []byte(`{"type":"input_audio_buffer.commit"}`)
}

// ResponseCreate asks the backend to generate (or resume) a response.
func ResponseCreate() []byte {
	return []byte(`{"type":"response.create"}`)
}

// TruncateItem discards the unplayed remainder of an in-flight assistant
// utterance, bounded by how much the caller actually heard.
func TruncateItem(itemID string, audioEndMs int64) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
	return b
}

// FunctionOutput delivers a tool handler result back into the conversation.
func FunctionOutput(callID, output string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
	return b
}
