package config

import (
	"os"
	"strconv"
	"sync"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

// AgentSettings are the session-configuration fields sent to the speech
// backend on every new connection. They are hot-reloadable: sessions read a
// snapshot at connection time, so an update applies to the next connection
// without touching calls already in flight.
type AgentSettings struct {
	Voice              string  `json:"voice"`
	Instructions       string  `json:"instructions"`
	InputAudioFormat   string  `json:"input_audio_format"`
	OutputAudioFormat  string  `json:"output_audio_format"`
	TranscriptionModel string  `json:"transcription_model"`
	Temperature        float64 `json:"temperature"`
	SilenceDurationMs  int     `json:"silence_duration_ms"`
}

const defaultInstructions = "You are a friendly door assistant. Greet visitors, answer questions about the household, and keep replies short and natural for a phone conversation."

// DefaultAgentSettings builds the initial settings from environment overrides.
func DefaultAgentSettings() AgentSettings {
	temp := 0.8
	if v := os.Getenv("AGENT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temp = f
		}
	}
	return AgentSettings{
		Voice:              getEnv("AGENT_VOICE", "alloy"),
		Instructions:       getEnv("AGENT_INSTRUCTIONS", defaultInstructions),
		InputAudioFormat:   "g711_ulaw",
		OutputAudioFormat:  "g711_ulaw",
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		Temperature:        temp,
		SilenceDurationMs:  500,
	}
}

// SessionConfig expands the settings into the backend handshake payload.
func (a AgentSettings) SessionConfig(tools []wire.ToolDef) wire.SessionConfig {
	cfg := wire.SessionConfig{
		Voice:             a.Voice,
		Instructions:      a.Instructions,
		InputAudioFormat:  a.InputAudioFormat,
		OutputAudioFormat: a.OutputAudioFormat,
		Temperature:       a.Temperature,
		Modalities:        []string{"text", "audio"},
		Tools:             tools,
	}
	cfg.TurnDetection.Type = "server_vad"
	cfg.TurnDetection.Threshold = 0.5
	cfg.TurnDetection.PrefixPaddingMs = 300
	cfg.TurnDetection.SilenceDurationMs = a.SilenceDurationMs
	cfg.InputAudioTranscription.Model = a.TranscriptionModel
	return cfg
}

// SettingsStore is a concurrency-safe holder for the current AgentSettings.
type SettingsStore struct {
	mu  sync.RWMutex
	cur AgentSettings
}

// NewSettingsStore wraps the given initial settings.
func NewSettingsStore(initial AgentSettings) *SettingsStore {
	return &SettingsStore{cur: initial}
}

// Current returns a snapshot of the settings.
func (s *SettingsStore) Current() AgentSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update atomically replaces the settings.
func (s *SettingsStore) Update(next AgentSettings) {
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}
