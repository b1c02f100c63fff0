package core

import (
	"bytes"
	"encoding/json"

	"github.com/dkeye/voicerelay/internal/domain"
)

// Inbound events.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventCallOffer      = "call-offer"
	EventCallAnswer     = "call-answer"
	EventICECandidate   = "ice-candidate"
	EventStartRecording = "start-recording"
	EventAudioChunk     = "audio-chunk"
	EventRecordingDone  = "recording-done"
	EventPing           = "ping"
)

// Outbound-only events.
const (
	EventNewPeer          = "new-peer"
	EventPeerLeft         = "peer-left"
	EventPeerDisconnected = "peer-disconnected"
	EventRecordingError   = "recording-error"
	EventPong             = "pong"
)

// Message is the envelope carried on the connection event stream.
// Payload is opaque and forwarded byte-for-byte.
type Message struct {
	Type    string          `json:"type"`
	Room    domain.RoomID   `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    []byte          `json:"data,omitempty"`
}

// IsSignal reports whether the event is one of the relayed connection-setup kinds.
func IsSignal(event string) bool {
	switch event {
	case EventCallOffer, EventCallAnswer, EventICECandidate:
		return true
	}
	return false
}

// Encode leaves HTML characters in payloads unescaped so relayed payloads keep their bytes.
func (m Message) Encode() (Frame, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// StringPayload wraps s as a JSON string payload.
func StringPayload(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
