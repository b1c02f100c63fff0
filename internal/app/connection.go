package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/app/recording"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

type ConnState int32

const (
	StateActive ConnState = iota
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "closed"
}

// Connection is the lifecycle controller for one client. Handle must be
// called from a single goroutine; Close may be called from any.
type Connection struct {
	ID domain.ConnectionID

	signal          core.SignalConnection
	relay           *Relay
	pipeline        *recording.Pipeline
	finalizeTimeout time.Duration
	log             zerolog.Logger

	// handling is held for each event and by Close, so no event is
	// processed half-way through the disconnect sequence.
	handling sync.Mutex
	state    atomic.Int32
	done     chan struct{}
}

func NewConnection(
	id domain.ConnectionID,
	signal core.SignalConnection,
	relay *Relay,
	pipeline *recording.Pipeline,
	finalizeTimeout time.Duration,
) *Connection {
	return &Connection{
		ID:              id,
		signal:          signal,
		relay:           relay,
		pipeline:        pipeline,
		finalizeTimeout: finalizeTimeout,
		log:             log.With().Str("module", "app.connection").Str("conn", string(id)).Logger(),
		done:            make(chan struct{}),
	}
}

func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// Done is closed once the disconnect sequence has finished.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Pipeline() *recording.Pipeline { return c.pipeline }

// Handle dispatches one inbound event.
func (c *Connection) Handle(ctx context.Context, msg core.Message) {
	c.handling.Lock()
	defer c.handling.Unlock()
	if c.State() != StateActive {
		c.log.Debug().Str("type", msg.Type).Msg("event after disconnect ignored")
		return
	}

	switch {
	case msg.Type == core.EventJoinRoom:
		c.relay.Join(c.ID, msg.Room, c.signal)
	case msg.Type == core.EventLeaveRoom:
		c.relay.Leave(c.ID, msg.Room)
	case core.IsSignal(msg.Type):
		c.relay.Forward(c.ID, msg.Type, msg.Room, msg.Payload)
	case msg.Type == core.EventStartRecording:
		if err := c.pipeline.Start(ctx, msg.Room); err != nil {
			c.sendRecordingError(msg.Room, err)
		}
	case msg.Type == core.EventAudioChunk:
		c.pipeline.Chunk(msg.Room, msg.Data)
	case msg.Type == core.EventRecordingDone:
		c.pipeline.Stop(ctx, msg.Room)
	case msg.Type == core.EventPing:
		c.send(core.Message{Type: core.EventPong})
	default:
		c.log.Warn().Str("type", msg.Type).Msg("unknown event")
	}
}

// Close runs the disconnect sequence once: every open capture is finalized
// and awaited, then peers get peer-disconnected, then the transport closes.
// Later calls wait for the first one to finish or for ctx to end.
func (c *Connection) Close(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(StateActive), int32(StateClosing)) {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
		return
	}
	defer close(c.done)

	c.handling.Lock()
	defer c.handling.Unlock()

	// The client is already gone; a cancelled request context must not cut finalization short.
	fctx := context.WithoutCancel(ctx)
	if c.finalizeTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, c.finalizeTimeout)
		defer cancel()
	}

	started := time.Now()
	outcomes, err := c.pipeline.Drain(fctx)
	if err != nil {
		c.log.Error().Err(err).Dur("timeout", c.finalizeTimeout).Msg("finalize deadline hit, announcing departure anyway")
	}

	c.relay.AnnounceDeparture(c.ID)
	c.signal.Close()
	c.state.Store(int32(StateClosed))
	c.log.Info().Int("finalized", len(outcomes)).Dur("took", time.Since(started)).Msg("connection closed")
}

func (c *Connection) sendRecordingError(room domain.RoomID, err error) {
	c.send(core.Message{
		Type:    core.EventRecordingError,
		Room:    room,
		Payload: core.StringPayload(recordingErrorMessage(err)),
	})
}

func (c *Connection) send(msg core.Message) {
	frame, err := msg.Encode()
	if err != nil {
		c.log.Error().Err(err).Str("type", msg.Type).Msg("cannot encode message")
		return
	}
	if err := c.signal.TrySend(frame); err != nil {
		c.log.Warn().Err(err).Str("type", msg.Type).Msg("cannot send to client")
	}
}

func recordingErrorMessage(err error) string {
	switch {
	case errors.Is(err, recording.ErrRateLimited):
		return "too many recording starts, try again later"
	case errors.Is(err, recording.ErrStoreClosed):
		return "connection is closing"
	}
	return "failed to start recording"
}
