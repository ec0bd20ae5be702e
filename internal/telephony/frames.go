// Package telephony implements the bidirectional frame channel with the
// telephony provider's media stream.
//
// Inbound JSON frames are demuxed into a small typed event stream
// (connected/start/media/stop/mark); outbound operations frame μ-law audio,
// buffer-clear commands, and boundary marks tied to the current stream ID.
// The out-of-band REST control channel for hanging up a live call lives in
// [HangupClient].
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EventType discriminates the inbound frames surfaced by a [Link].
type EventType string

const (
	// EventConnected is the provider's initial handshake frame. Informational.
	EventConnected EventType = "connected"

	// EventStart carries the call and stream identifiers. Exactly once, first
	// after connected.
	EventStart EventType = "start"

	// EventMedia carries one μ-law 8 kHz mono audio frame, typically 160 bytes
	// (20 ms). High frequency.
	EventMedia EventType = "media"

	// EventStop is terminal: the provider has ended the stream.
	EventStop EventType = "stop"

	// EventMark echoes a boundary marker previously sent with SendMark.
	EventMark EventType = "mark"
)

// Event is one demuxed inbound frame.
type Event struct {
	Type EventType

	// StreamID and CallID are set on start events.
	StreamID string
	CallID   string

	// Media holds the decoded μ-law payload of a media event.
	Media []byte

	// Mark holds the marker name of a mark event.
	Mark string
}

// ─── Wire envelopes ───────────────────────────────────────────────────────────

type startPayload struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

// inboundFrame is the provider's JSON envelope with an "event" discriminator.
type inboundFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

// outboundFrame is the envelope for frames sent back to the provider.
type outboundFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

// DecodeFrame parses a raw provider frame into an [Event].
// Unknown event types and malformed payloads return an error; callers log and
// skip the frame.
func DecodeFrame(data []byte) (Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("telephony: decode frame: %w", err)
	}

	switch f.Event {
	case "connected":
		return Event{Type: EventConnected}, nil

	case "start":
		if f.Start == nil {
			return Event{}, fmt.Errorf("telephony: start frame without start payload")
		}
		return Event{
			Type:     EventStart,
			StreamID: f.Start.StreamSid,
			CallID:   f.Start.CallSid,
		}, nil

	case "media":
		if f.Media == nil {
			return Event{}, fmt.Errorf("telephony: media frame without media payload")
		}
		audio, err := base64.StdEncoding.DecodeString(f.Media.Payload)
		if err != nil {
			return Event{}, fmt.Errorf("telephony: decode media payload: %w", err)
		}
		return Event{Type: EventMedia, Media: audio}, nil

	case "stop":
		return Event{Type: EventStop}, nil

	case "mark":
		if f.Mark == nil {
			return Event{}, fmt.Errorf("telephony: mark frame without mark payload")
		}
		return Event{Type: EventMark, Mark: f.Mark.Name}, nil

	default:
		return Event{}, fmt.Errorf("telephony: unknown event type %q", f.Event)
	}
}

// EncodeMedia frames raw μ-law bytes as a media frame for the given stream.
// The payload is base64 of the raw bytes; no container header.
func EncodeMedia(streamID string, audio []byte) []byte {
	out, _ := json.Marshal(outboundFrame{
		Event:     "media",
		StreamSid: streamID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
	return out
}

// EncodeClear frames a buffer-clear command for the given stream. The provider
// drops its outbound jitter buffer on receipt.
func EncodeClear(streamID string) []byte {
	out, _ := json.Marshal(outboundFrame{
		Event:     "clear",
		StreamSid: streamID,
	})
	return out
}

// EncodeMark frames a boundary marker for the given stream. The provider echoes
// the mark back once all audio queued before it has been played out.
func EncodeMark(streamID, name string) []byte {
	out, _ := json.Marshal(outboundFrame{
		Event:     "mark",
		StreamSid: streamID,
		Mark:      &markPayload{Name: name},
	})
	return out
}
