package recording

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/iter"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

// Session is one in-progress capture for a (connection, room) pair.
type Session struct {
	Room      domain.RoomID
	Path      string
	CreatedAt time.Time

	sink    Sink
	written atomic.Int64
}

// Written is the number of bytes appended so far.
func (s *Session) Written() int64 { return s.written.Load() }

// Outcome is the result of one finalize job.
type Outcome struct {
	Conn        domain.ConnectionID
	Room        domain.RoomID
	RawPath     string
	EncodedPath string
	Err         error
}

// OK reports whether the capture was transcoded.
func (o Outcome) OK() bool { return o.Err == nil }

// Hook runs after a successful transcode, inside the finalize job.
type Hook func(ctx context.Context, o Outcome)

type StoreConfig struct {
	Dir        string
	RawExt     string
	Codec      domain.Codec
	Transcoder core.Transcoder
	Hooks      []Hook

	// OpenSink and Now are overridable for tests.
	OpenSink func(path string) (Sink, error)
	Now      func() time.Time
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Dir == "" {
		c.Dir = "recordings"
	}
	if c.RawExt == "" {
		c.RawExt = "webm"
	}
	if c.Codec == "" {
		c.Codec = domain.CodecMulaw
	}
	if c.OpenSink == nil {
		c.OpenSink = NewFileSink
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Store maps room ids to the open captures of one connection.
// Start for a given room must not race another Start for the same room;
// the connection's single event worker guarantees that.
type Store struct {
	conn domain.ConnectionID
	cfg  StoreConfig
	log  zerolog.Logger

	mu        sync.Mutex
	sessions  map[domain.RoomID]*Session
	lastStamp time.Time
	closed    bool

	inflight conc.WaitGroup
}

func NewStore(conn domain.ConnectionID, cfg StoreConfig) *Store {
	return &Store{
		conn:     conn,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("module", "app.recording").Str("conn", string(conn)).Logger(),
		sessions: make(map[domain.RoomID]*Session),
	}
}

// Start opens a new capture for room. An open capture for the same room is
// finalized first, transcode included.
func (s *Store) Start(ctx context.Context, room domain.RoomID) (*Session, error) {
	if prev := s.detach(room); prev != nil {
		s.log.Info().Str("room", string(room)).Str("path", prev.Path).Msg("superseding open recording")
		s.finalize(ctx, prev)
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, &OpenError{Room: room, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		stamp time.Time
		path  string
		sink  Sink
		err   error
	)
	// A leftover file with the same name is never reused; move to the next stamp.
	for range maxOpenAttempts {
		stamp = s.nextStampLocked()
		path = domain.RawCapturePath(s.cfg.Dir, room, s.conn, stamp, s.cfg.RawExt)
		sink, err = s.cfg.OpenSink(path)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, &OpenError{Room: room, Err: err}
	}
	sess := &Session{Room: room, Path: path, CreatedAt: stamp, sink: sink}
	s.sessions[room] = sess
	return sess, nil
}

const maxOpenAttempts = 5

// nextStampLocked never hands out the same millisecond twice, so restarting
// in the same room always yields a new path.
func (s *Store) nextStampLocked() time.Time {
	stamp := s.cfg.Now().Truncate(time.Millisecond)
	if !stamp.After(s.lastStamp) {
		stamp = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = stamp
	return stamp
}

// Append writes p to the room's open capture. ErrNoSession means the chunk was dropped.
func (s *Store) Append(room domain.RoomID, p []byte) error {
	s.mu.Lock()
	sess := s.sessions[room]
	s.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	n, err := sess.sink.Write(p)
	sess.written.Add(int64(n))
	if err != nil {
		if errors.Is(err, ErrSinkClosed) {
			return ErrNoSession
		}
		return fmt.Errorf("append to %s: %w", sess.Path, err)
	}
	return nil
}

// Finalize flushes, transcodes and forgets the room's capture. ok is false when
// nothing was open.
func (s *Store) Finalize(ctx context.Context, room domain.RoomID) (o Outcome, ok bool) {
	sess := s.detach(room)
	if sess == nil {
		return Outcome{}, false
	}
	return s.finalize(ctx, sess), true
}

// FinalizeAsync detaches and flushes the room's capture before returning, so
// the raw file is complete and closed. Transcode and hooks run in the
// background; Wait and FinalizeAll wait for them.
func (s *Store) FinalizeAsync(ctx context.Context, room domain.RoomID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[room]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, room)
	// Registered under mu so FinalizeAll, which takes mu first, always waits for it.
	flushed := make(chan error, 1)
	s.inflight.Go(func() {
		s.complete(ctx, sess, <-flushed)
	})
	s.mu.Unlock()

	flushed <- sess.sink.Close()
	return true
}

// FinalizeAll finalizes every open capture concurrently, then waits for the
// background finalizations too. After it the store accepts no new sessions.
// ctx bounds only the waiting: a non-nil error means ctx ended first, and the
// finalizations keep running to completion in the background.
func (s *Store) FinalizeAll(ctx context.Context) ([]Outcome, error) {
	s.mu.Lock()
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for room, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, room)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Room < open[j].Room })

	results := make(chan []Outcome, 1)
	s.inflight.Go(func() {
		mapper := iter.Mapper[*Session, Outcome]{MaxGoroutines: len(open)}
		results <- mapper.Map(open, func(sess **Session) Outcome {
			return s.finalize(ctx, *sess)
		})
	})
	s.mu.Unlock()

	select {
	case outcomes := <-results:
		return outcomes, s.Wait(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until background finalizations are done or ctx ends.
func (s *Store) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := s.inflight.WaitAndRecover(); r != nil {
			s.log.Error().Str("panic", r.String()).Msg("finalize panicked")
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Has reports whether room has an open capture.
func (s *Store) Has(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[room]
	return ok
}

// Len is the number of open captures.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Rooms lists rooms with an open capture.
func (s *Store) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomID, 0, len(s.sessions))
	for room := range s.sessions {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// detach removes the entry up front so late chunks are dropped instead of
// hitting a closing sink.
func (s *Store) detach(room domain.RoomID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[room]
	if !ok {
		return nil
	}
	delete(s.sessions, room)
	return sess
}

func (s *Store) finalize(ctx context.Context, sess *Session) Outcome {
	// The transcoder must see every byte, so close has to finish first.
	return s.complete(ctx, sess, sess.sink.Close())
}

// complete transcodes a flushed capture and runs the hooks. Cancelling ctx
// does not stop it; a started finalization always runs to the end.
func (s *Store) complete(ctx context.Context, sess *Session, flushErr error) Outcome {
	ctx = context.WithoutCancel(ctx)
	out := Outcome{Conn: s.conn, Room: sess.Room, RawPath: sess.Path}
	logger := s.log.With().Str("room", string(sess.Room)).Str("path", sess.Path).Logger()
	started := time.Now()

	if flushErr != nil {
		out.Err = fmt.Errorf("flush capture: %w", flushErr)
		logger.Error().Err(out.Err).Msg("cannot flush capture")
		return out
	}

	if sess.Written() == 0 {
		out.Err = ErrEmptyCapture
		if err := os.Remove(sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Msg("cannot remove empty capture")
		}
		logger.Info().Msg("empty capture discarded")
		return out
	}

	encoded, err := s.cfg.Transcoder.Convert(ctx, sess.Path, s.cfg.Codec)
	if err != nil {
		out.Err = err
		logger.Error().Err(err).Msg("transcode failed, raw capture retained")
		return out
	}
	out.EncodedPath = encoded
	logger.Info().
		Str("encoded", encoded).
		Int64("bytes", sess.Written()).
		Dur("took", time.Since(started)).
		Msg("recording finalized")

	for _, h := range s.cfg.Hooks {
		h(ctx, out)
	}
	return out
}
