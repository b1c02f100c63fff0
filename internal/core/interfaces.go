package core

import (
	"context"
	"io"

	"github.com/dkeye/voicerelay/internal/domain"
)

// Frame is an encoded outbound message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// DroppedMember is a room member a broadcast could not reach.
type DroppedMember struct {
	ID   domain.ConnectionID
	Conn SignalConnection
	Err  error
}

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SendTo  int
	Dropped []DroppedMember
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// Transcoder converts a finished capture into an encoded file and returns its path.
type Transcoder interface {
	Convert(ctx context.Context, inputPath string, codec domain.Codec) (string, error)
}

// Uploader stores a finished artifact out of process. Key is a unique identifier for the file.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
}
