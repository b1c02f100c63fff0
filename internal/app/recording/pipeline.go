package recording

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/domain"
)

// Pipeline turns start/chunk/stop events into Store operations and decides
// which failures the caller gets to see.
type Pipeline struct {
	store   *Store
	limiter *StartLimiter
	log     zerolog.Logger
}

func NewPipeline(store *Store, limiter *StartLimiter) *Pipeline {
	return &Pipeline{
		store:   store,
		limiter: limiter,
		log:     log.With().Str("module", "app.recording").Str("conn", string(store.conn)).Logger(),
	}
}

func (p *Pipeline) Store() *Store { return p.store }

// Start opens a capture for room. The returned error is meant for the client:
// OpenError, ErrRateLimited or ErrStoreClosed.
func (p *Pipeline) Start(ctx context.Context, room domain.RoomID) error {
	if p.limiter != nil && !p.limiter.Allow(room) {
		p.log.Warn().Str("room", string(room)).Msg("start-recording rate limited")
		return ErrRateLimited
	}
	sess, err := p.store.Start(ctx, room)
	if err != nil {
		p.log.Error().Err(err).Str("room", string(room)).Msg("cannot start recording")
		return err
	}
	p.log.Info().Str("room", string(room)).Str("path", sess.Path).Msg("recording started")
	return nil
}

// Chunk appends data to the room's capture. Chunks racing a stop are dropped.
func (p *Pipeline) Chunk(room domain.RoomID, data []byte) {
	if len(data) == 0 {
		return
	}
	err := p.store.Append(room, data)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSession):
		p.log.Warn().Str("room", string(room)).Int("bytes", len(data)).Msg("dropped audio chunk, no open recording")
	default:
		p.log.Error().Err(err).Str("room", string(room)).Msg("cannot append audio chunk")
	}
}

// Stop detaches the room's capture and finalizes it without blocking the
// connection's other rooms.
func (p *Pipeline) Stop(ctx context.Context, room domain.RoomID) {
	if !p.store.FinalizeAsync(ctx, room) {
		p.log.Warn().Str("room", string(room)).Msg("recording-done without open recording")
	}
}

// Drain finalizes everything still open and waits for in-flight finalizations.
func (p *Pipeline) Drain(ctx context.Context) ([]Outcome, error) {
	outcomes, err := p.store.FinalizeAll(ctx)
	for _, o := range outcomes {
		if o.Err != nil && !errors.Is(o.Err, ErrEmptyCapture) {
			p.log.Error().Err(o.Err).Str("room", string(o.Room)).Str("path", o.RawPath).Msg("finalize at disconnect failed")
		}
	}
	if err != nil {
		p.log.Error().Err(err).Msg("stopped waiting for in-flight finalizations")
	}
	return outcomes, err
}

// Factory builds one Pipeline, and so one Store, per connection.
type Factory struct {
	Store         StoreConfig
	StartLimit    int
	StartInterval time.Duration
}

func (f *Factory) New(conn domain.ConnectionID) *Pipeline {
	var limiter *StartLimiter
	if f.StartLimit > 0 && f.StartInterval > 0 {
		limiter = NewStartLimiter(f.StartLimit, f.StartInterval)
	}
	return NewPipeline(NewStore(conn, f.Store), limiter)
}
