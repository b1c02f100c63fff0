package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

var ErrBadFrame = errors.New("bad frame")

const maxBinaryRoom = 255

// Decode turns one WebSocket message into an inbound event.
// Text frames are JSON envelopes; binary frames are audio chunks laid out as
// [room length byte][room][audio].
func Decode(kind int, data []byte) (core.Message, error) {
	switch kind {
	case websocket.TextMessage:
		return decodeText(data)
	case websocket.BinaryMessage:
		return decodeBinary(data)
	}
	return core.Message{}, fmt.Errorf("%w: frame type %d", ErrBadFrame, kind)
}

func decodeText(data []byte) (core.Message, error) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return core.Message{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	if msg.Type == "" {
		return core.Message{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return msg, nil
}

func decodeBinary(data []byte) (core.Message, error) {
	if len(data) < 1 {
		return core.Message{}, fmt.Errorf("%w: empty binary frame", ErrBadFrame)
	}
	n := int(data[0])
	if len(data) < 1+n {
		return core.Message{}, fmt.Errorf("%w: room length %d exceeds frame", ErrBadFrame, n)
	}
	return core.Message{
		Type: core.EventAudioChunk,
		Room: domain.RoomID(data[1 : 1+n]),
		Data: data[1+n:],
	}, nil
}

// EncodeAudioChunk builds the binary frame Decode accepts.
func EncodeAudioChunk(room domain.RoomID, audio []byte) ([]byte, error) {
	if len(room) > maxBinaryRoom {
		return nil, fmt.Errorf("%w: room id longer than %d bytes", ErrBadFrame, maxBinaryRoom)
	}
	out := make([]byte, 0, 1+len(room)+len(audio))
	out = append(out, byte(len(room)))
	out = append(out, room...)
	return append(out, audio...), nil
}
