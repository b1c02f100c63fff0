package recording

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicerelay/internal/domain"
)

var (
	// ErrNoSession marks a dropped chunk: nothing is open for the room.
	ErrNoSession    = errors.New("no open recording for room")
	ErrOpen         = errors.New("cannot open recording")
	ErrStoreClosed  = errors.New("recording store closed")
	ErrEmptyCapture = errors.New("capture is empty")
	ErrRateLimited  = errors.New("too many recording starts")
)

// OpenError is returned when the recordings dir or the sink cannot be created.
// No session exists for the room afterwards.
type OpenError struct {
	Room domain.RoomID
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open recording for room %s: %v", e.Room, e.Err)
}

func (e *OpenError) Unwrap() []error { return []error{ErrOpen, e.Err} }
