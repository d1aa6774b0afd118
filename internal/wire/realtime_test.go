package wire

import (
	"encoding/json"
	"testing"
)

func TestDecodeBackend_Events(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want BackendEvent
	}{
		{
			"session_created",
			`{"type":"session.created"}`,
			SessionReady{Type: "session.created"},
		},
		{
			"caller_transcript",
			`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hi there"}`,
			CallerTranscript{Transcript: "hi there"},
		},
		{
			"audio_delta",
			`{"type":"response.audio.delta","item_id":"item-7","delta":"b64"}`,
			AudioDelta{ItemID: "item-7", Delta: "b64"},
		},
		{
			"output_audio_delta_alias",
			`{"type":"response.output_audio.delta","item_id":"item-8","delta":"b64"}`,
			AudioDelta{ItemID: "item-8", Delta: "b64"},
		},
		{
			"speech_started",
			`{"type":"input_audio_buffer.speech_started"}`,
			SpeechStarted{},
		},
		{
			"function_call",
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"web_search","call_id":"c1","arguments":"{\"query\":\"weather\"}"}}`,
			FunctionCall{Name: "web_search", CallID: "c1", Arguments: `{"query":"weather"}`},
		},
		{
			"response_done_with_transcript",
			`{"type":"response.done","response":{"output":[{"content":[{"transcript":"Hello"}]}]}}`,
			ResponseDone{Transcript: "Hello"},
		},
		{
			"error",
			`{"type":"error","error":{"message":"boom"}}`,
			BackendError{Message: "boom"},
		},
		{
			"unknown",
			`{"type":"rate_limits.updated"}`,
			UnknownBackend{Type: "rate_limits.updated"},
		},
		{
			"output_item_done_non_function",
			`{"type":"response.output_item.done","item":{"type":"message"}}`,
			UnknownBackend{Type: "response.output_item.done"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeBackend([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeBackend_Errors(t *testing.T) {
	if _, err := DecodeBackend([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := DecodeBackend([]byte(`{"transcript":"x"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestSessionUpdate_CarriesToolsAndTurnDetection(t *testing.T) {
	cfg := SessionConfig{
		Voice:             "alloy",
		Instructions:      "be brief",
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		Temperature:       0.8,
		Modalities:        []string{"text", "audio"},
		Tools: []ToolDef{{
			Type: "function", Name: "web_search",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	}
	cfg.TurnDetection.Type = "server_vad"
	cfg.TurnDetection.SilenceDurationMs = 500
	cfg.InputAudioTranscription.Model = "whisper-1"

	var m map[string]any
	if err := json.Unmarshal(SessionUpdate(cfg), &m); err != nil {
		t.Fatalf("session.update: %v", err)
	}
	if m["type"] != "session.update" {
		t.Fatalf("type = %v", m["type"])
	}
	session := m["session"].(map[string]any)
	if session["voice"] != "alloy" {
		t.Fatalf("voice = %v", session["voice"])
	}
	tools := session["tools"].([]any)
	if len(tools) != 1 || tools[0].(map[string]any)["name"] != "web_search" {
		t.Fatalf("tools = %v", tools)
	}
	td := session["turn_detection"].(map[string]any)
	if td["type"] != "server_vad" || td["silence_duration_ms"] != float64(500) {
		t.Fatalf("turn_detection = %v", td)
	}
}

func TestTruncateItem(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal(TruncateItem("item-3", 480), &m); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if m["type"] != "conversation.item.truncate" {
		t.Fatalf("type = %v", m["type"])
	}
	if m["item_id"] != "item-3" || m["audio_end_ms"] != float64(480) || m["content_index"] != float64(0) {
		t.Fatalf("payload = %v", m)
	}
}

func TestFunctionOutputFollowedByResponseCreate(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal(FunctionOutput("call-9", `{"result":"42"}`), &m); err != nil {
		t.Fatalf("function output: %v", err)
	}
	if m["type"] != "conversation.item.create" {
		t.Fatalf("type = %v", m["type"])
	}
	item := m["item"].(map[string]any)
	if item["type"] != "function_call_output" || item["call_id"] != "call-9" {
		t.Fatalf("item = %v", item)
	}

	var rc map[string]any
	if err := json.Unmarshal(ResponseCreate(), &rc); err != nil {
		t.Fatalf("response.create: %v", err)
	}
	if rc["type"] != "response.create" {
		t.Fatalf("type = %v", rc["type"])
	}
}
