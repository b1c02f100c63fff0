package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/app/recording"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

// timeline records events from several fakes in the order they happened.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(e string) {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	tl.events = append(tl.events, e)
	tl.mu.Unlock()
}

func (tl *timeline) all() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.events...)
}

func (tl *timeline) index(e string) int {
	for i, got := range tl.all() {
		if got == e {
			return i
		}
	}
	return -1
}

type fakeSignal struct {
	name string
	tl   *timeline
	err  error

	mu     sync.Mutex
	msgs   []core.Message
	closed bool
}

func newFakeSignal(name string, tl *timeline) *fakeSignal {
	return &fakeSignal{name: name, tl: tl}
}

func (f *fakeSignal) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnClosed
	}
	if f.err != nil {
		return f.err
	}
	var msg core.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return err
	}
	f.msgs = append(f.msgs, msg)
	f.tl.add(f.name + ":" + msg.Type)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.tl.add(f.name + ":closed")
	}
}

func (f *fakeSignal) Messages() []core.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Message(nil), f.msgs...)
}

func (f *fakeSignal) OfType(kind string) []core.Message {
	var out []core.Message
	for _, m := range f.Messages() {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSignal) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// copyTranscoder writes the capture bytes to the encoded path and logs "transcode:<file>".
type copyTranscoder struct {
	tl  *timeline
	err error
}

func (c *copyTranscoder) Convert(_ context.Context, in string, codec domain.Codec) (string, error) {
	c.tl.add("transcode:" + filepath.Base(in))
	if c.err != nil {
		return "", c.err
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	out := domain.EncodedPath(in, codec)
	return out, os.WriteFile(out, data, 0o644)
}

type fixture struct {
	tl    *timeline
	dir   string
	relay *Relay
	mgr   *ConnectionManager
	tr    *copyTranscoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tl := &timeline{}
	tr := &copyTranscoder{tl: tl}
	dir := filepath.Join(t.TempDir(), "recordings")
	relay := NewRelay(NewHub(), DropPolicy{})
	factory := &recording.Factory{Store: recording.StoreConfig{Dir: dir, Transcoder: tr}}
	return &fixture{
		tl:    tl,
		dir:   dir,
		relay: relay,
		mgr:   NewConnectionManager(relay, factory, 0),
		tr:    tr,
	}
}

func (f *fixture) open(name string) (*Connection, *fakeSignal) {
	sig := newFakeSignal(name, f.tl)
	return f.mgr.Open(sig), sig
}

func (f *fixture) encodedFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, "*-mulaw.wav"))
	require.NoError(t, err)
	return matches
}

func msg(kind string, room domain.RoomID) core.Message {
	return core.Message{Type: kind, Room: room}
}
