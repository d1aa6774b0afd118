package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TelephonyEvent is a decoded frame from the telephony media stream.
// The concrete type carries the fields relevant to that event kind.
type TelephonyEvent interface {
	telephonyEvent()
}

// StreamStart signals the beginning of a media stream and carries the
// routing token required on every outbound frame.
type StreamStart struct {
	StreamSID string
	CallSID   string
}

// MediaFrame carries one base64-encoded audio chunk from the caller.
// Timestamp is the telephony media clock in milliseconds since stream start.
type MediaFrame struct {
	StreamSID string
	Payload   string
	Timestamp int64
}

// StreamStop signals the end of the caller's audio input.
type StreamStop struct {
	StreamSID string
}

// UnknownTelephony is any well-formed envelope with an unrecognized event kind.
type UnknownTelephony struct {
	Event string
}

func (StreamStart) telephonyEvent()      {}
func (MediaFrame) telephonyEvent()       {}
func (StreamStop) telephonyEvent()       {}
func (UnknownTelephony) telephonyEvent() {}

type telephonyEnvelope struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Start     *struct {
		StreamSID string `json:"streamSid"`
		CallSID   string `json:"callSid"`
	} `json:"start"`
	Media *struct {
		Payload   string `json:"payload"`
		Timestamp string `json:"timestamp"`
	} `json:"media"`
	Timestamp int64 `json:"timestamp"`
}

// DecodeTelephony parses a raw telephony frame into a typed event.
// Malformed input yields an error for the caller to log and drop; it never
// panics past this boundary.
func DecodeTelephony(raw []byte) (TelephonyEvent, error) {
	var env telephonyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("telephony frame: %w", err)
	}
	switch env.Event {
	case "start":
		ev := StreamStart{StreamSID: env.StreamSID}
		if env.Start != nil {
			if env.Start.StreamSID != "" {
				ev.StreamSID = env.Start.StreamSID
			}
			ev.CallSID = env.Start.CallSID
		}
		return ev, nil
	case "media":
		if env.Media == nil {
			return nil, fmt.Errorf("telephony media frame missing media body")
		}
		ev := MediaFrame{StreamSID: env.StreamSID, Payload: env.Media.Payload, Timestamp: env.Timestamp}
		// Twilio puts the media clock inside the media object as a string.
		if env.Media.Timestamp != "" {
			if ts, err := strconv.ParseInt(env.Media.Timestamp, 10, 64); err == nil {
				ev.Timestamp = ts
			}
		}
		return ev, nil
	case "stop":
		return StreamStop{StreamSID: env.StreamSID}, nil
	case "":
		return nil, fmt.Errorf("telephony frame missing event field")
	default:
		return UnknownTelephony{Event: env.Event}, nil
	}
}

// OutboundMedia builds a media frame carrying assistant audio back to telephony.
func OutboundMedia(streamSID, payload string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event":     "media",
		"streamSid": streamSID,
		"media":     map[string]string{"payload": payload},
	})
	return b
}

// OutboundClear instructs telephony to discard all queued playback immediately.
func OutboundClear(streamSID string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event":     "clear",
		"streamSid": streamSID,
	})
	return b
}

// OutboundMark emits a playback-position marker.
func OutboundMark(streamSID, name string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event":     "mark",
		"streamSid": streamSID,
		"mark":      map[string]string{"name": name},
	})
	return b
}
