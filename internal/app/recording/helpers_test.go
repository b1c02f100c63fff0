package recording

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicerelay/internal/domain"
)

// fakeTranscoder copies the flushed capture to the encoded path.
type fakeTranscoder struct {
	err error

	// When release is set, Convert announces itself on arrived and blocks until release closes.
	arrived chan string
	release chan struct{}

	mu    sync.Mutex
	seen  map[string]int
	calls []string
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{seen: make(map[string]int)}
}

func (f *fakeTranscoder) gated(buffer int) *fakeTranscoder {
	f.arrived = make(chan string, buffer)
	f.release = make(chan struct{})
	return f
}

func (f *fakeTranscoder) Convert(ctx context.Context, in string, codec domain.Codec) (string, error) {
	if f.release != nil {
		f.arrived <- in
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.seen[in] = len(data)
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	out := domain.EncodedPath(in, codec)
	return out, os.WriteFile(out, data, 0o644)
}

func (f *fakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTranscoder) BytesSeen(in string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[in]
}

// stepClock returns a fixed instant; the store must still produce unique paths.
func stepClock() func() time.Time {
	at := time.UnixMilli(1700000000000)
	return func() time.Time { return at }
}

func newTestStore(t *testing.T, tr *fakeTranscoder) *Store {
	t.Helper()
	return NewStore("conn-a", StoreConfig{
		Dir:        filepath.Join(t.TempDir(), "recordings"),
		Codec:      domain.CodecMulaw,
		Transcoder: tr,
		Now:        stepClock(),
	})
}

func waitArrivals(t *testing.T, tr *fakeTranscoder, n int) []string {
	t.Helper()
	got := make([]string, 0, n)
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case p := <-tr.arrived:
			got = append(got, p)
		case <-timeout:
			t.Fatalf("only %d of %d transcodes started", len(got), n)
		}
	}
	return got
}
