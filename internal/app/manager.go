package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/voicerelay/internal/app/recording"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

type Stats struct {
	Connections int             `json:"connections"`
	Recordings  int             `json:"recordings"`
	Rooms       []core.RoomInfo `json:"rooms"`
}

// ConnectionManager creates connections and keeps the live ones by id.
type ConnectionManager struct {
	relay           *Relay
	recordings      *recording.Factory
	finalizeTimeout time.Duration

	mu    sync.RWMutex
	conns map[domain.ConnectionID]*Connection
}

func NewConnectionManager(relay *Relay, recordings *recording.Factory, finalizeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		relay:           relay,
		recordings:      recordings,
		finalizeTimeout: finalizeTimeout,
		conns:           make(map[domain.ConnectionID]*Connection),
	}
}

// Open registers a new connection on top of signal.
func (m *ConnectionManager) Open(signal core.SignalConnection) *Connection {
	id := domain.NewConnectionID()
	c := NewConnection(id, signal, m.relay, m.recordings.New(id), m.finalizeTimeout)

	m.mu.Lock()
	m.conns[id] = c
	total := len(m.conns)
	m.mu.Unlock()

	log.Info().Str("module", "app.manager").Str("conn", string(id)).Int("connections", total).Msg("connection opened")
	return c
}

// Disconnect runs the connection's disconnect sequence and forgets it.
func (m *ConnectionManager) Disconnect(ctx context.Context, c *Connection) {
	c.Close(ctx)

	m.mu.Lock()
	if m.conns[c.ID] == c {
		delete(m.conns, c.ID)
	}
	total := len(m.conns)
	m.mu.Unlock()

	log.Info().Str("module", "app.manager").Str("conn", string(c.ID)).Int("connections", total).Msg("connection removed")
}

// CloseAll disconnects every live connection concurrently and waits for them.
func (m *ConnectionManager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	log.Info().Str("module", "app.manager").Int("connections", len(conns)).Msg("closing all connections")

	var wg conc.WaitGroup
	for _, c := range conns {
		wg.Go(func() { m.Disconnect(ctx, c) })
	}
	wg.Wait()
}

func (m *ConnectionManager) Get(id domain.ConnectionID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *ConnectionManager) Stats() Stats {
	m.mu.RLock()
	s := Stats{Connections: len(m.conns)}
	for _, c := range m.conns {
		s.Recordings += c.pipeline.Store().Len()
	}
	m.mu.RUnlock()
	s.Rooms = m.relay.Hub().List()
	return s
}
