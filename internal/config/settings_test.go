package config

import (
	"sync"
	"testing"
)

func TestDefaultAgentSettings_EnvOverrides(t *testing.T) {
	t.Setenv("AGENT_VOICE", "verse")
	t.Setenv("AGENT_TEMPERATURE", "0.55")
	s := DefaultAgentSettings()
	if s.Voice != "verse" {
		t.Fatalf("voice = %q", s.Voice)
	}
	if s.Temperature != 0.55 {
		t.Fatalf("temperature = %v", s.Temperature)
	}
	if s.InputAudioFormat != "g711_ulaw" || s.OutputAudioFormat != "g711_ulaw" {
		t.Fatalf("audio formats = %q/%q", s.InputAudioFormat, s.OutputAudioFormat)
	}
}

func TestDefaultAgentSettings_BadTemperatureIgnored(t *testing.T) {
	t.Setenv("AGENT_TEMPERATURE", "warm")
	s := DefaultAgentSettings()
	if s.Temperature != 0.8 {
		t.Fatalf("temperature = %v, want default", s.Temperature)
	}
}

func TestAgentSettings_SessionConfig(t *testing.T) {
	s := AgentSettings{
		Voice:              "alloy",
		Instructions:       "be brief",
		InputAudioFormat:   "g711_ulaw",
		OutputAudioFormat:  "g711_ulaw",
		TranscriptionModel: "whisper-1",
		Temperature:        0.7,
		SilenceDurationMs:  700,
	}
	cfg := s.SessionConfig(nil)
	if cfg.Voice != "alloy" || cfg.Instructions != "be brief" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.TurnDetection.Type != "server_vad" || cfg.TurnDetection.SilenceDurationMs != 700 {
		t.Fatalf("turn detection = %+v", cfg.TurnDetection)
	}
	if cfg.InputAudioTranscription.Model != "whisper-1" {
		t.Fatalf("transcription = %+v", cfg.InputAudioTranscription)
	}
	if len(cfg.Modalities) != 2 {
		t.Fatalf("modalities = %v", cfg.Modalities)
	}
}

func TestSettingsStore_ConcurrentReadsSeeUpdate(t *testing.T) {
	store := NewSettingsStore(AgentSettings{Voice: "alloy"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Current()
			}
		}()
	}
	store.Update(AgentSettings{Voice: "verse"})
	wg.Wait()

	if got := store.Current().Voice; got != "verse" {
		t.Fatalf("voice after update = %q", got)
	}
}
