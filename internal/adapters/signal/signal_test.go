package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/app/recording"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

type copyTranscoder struct{}

func (copyTranscoder) Convert(_ context.Context, in string, codec domain.Codec) (string, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	out := domain.EncodedPath(in, codec)
	return out, os.WriteFile(out, data, 0o644)
}

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

type harness struct {
	url string
	dir string
	mgr *app.ConnectionManager
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := filepath.Join(t.TempDir(), "recordings")
	mgr := app.NewConnectionManager(
		app.NewRelay(app.NewHub(), app.DropPolicy{}),
		&recording.Factory{Store: recording.StoreConfig{Dir: dir, Transcoder: copyTranscoder{}}},
		0,
	)
	ctl := NewSignalWSController(mgr, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		mgr.CloseAll(context.Background())
		cancel()
		srv.Close()
	})

	return &harness{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", dir: dir, mgr: mgr}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg core.Message) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, b))
}

// await reads until a message of the given type arrives.
func await(t *testing.T, ws *websocket.Conn, kind string) core.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", kind)
		var msg core.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == kind {
			return msg
		}
	}
}

// joinPair joins a then b to room and returns b's connection id as seen by a.
func joinPair(t *testing.T, a, b *websocket.Conn, room domain.RoomID) string {
	t.Helper()
	send(t, a, core.Message{Type: core.EventJoinRoom, Room: room})
	// a ping round trip guarantees a's join was handled before b joins.
	send(t, a, core.Message{Type: core.EventPing})
	await(t, a, core.EventPong)

	send(t, b, core.Message{Type: core.EventJoinRoom, Room: room})
	var id string
	require.NoError(t, json.Unmarshal(await(t, a, core.EventNewPeer).Payload, &id))
	return id
}

func TestSignalRelayOverWebSocket(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.dial(t), h.dial(t)
	require.NotEmpty(t, joinPair(t, a, b, "r1"))

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)
	send(t, b, core.Message{Type: core.EventCallOffer, Room: "r1", Payload: offer})
	got := await(t, a, core.EventCallOffer)
	require.Equal(t, string(offer), string(got.Payload))

	send(t, a, core.Message{Type: core.EventCallAnswer, Room: "r1", Payload: json.RawMessage(`{"type":"answer"}`)})
	require.JSONEq(t, `{"type":"answer"}`, string(await(t, b, core.EventCallAnswer).Payload))
}

func TestRecordingOverWebSocketFinalizesBeforeDisconnectNotice(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := h.dial(t), h.dial(t)
	joinPair(t, b, a, "r1")

	send(t, a, core.Message{Type: core.EventStartRecording, Room: "r1"})
	send(t, a, core.Message{Type: core.EventAudioChunk, Room: "r1", Data: []byte("text-")})
	frame, err := EncodeAudioChunk("r1", []byte("binary"))
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, frame))
	send(t, a, core.Message{Type: core.EventPing})
	await(t, a, core.EventPong)

	require.NoError(t, a.Close())
	await(t, b, core.EventPeerDisconnected)

	// By the time peers hear about it, the encoded file is complete.
	files, err := filepath.Glob(filepath.Join(h.dir, "audio-r1-*-mulaw.wav"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Equal(t, "text-binary", string(data))
}

func TestRecordingErrorOverWebSocket(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, os.WriteFile(h.dir, nil, 0o644))
	a := h.dial(t)

	send(t, a, core.Message{Type: core.EventStartRecording, Room: "r1"})
	got := await(t, a, core.EventRecordingError)
	require.Equal(t, domain.RoomID("r1"), got.Room)
}

func TestBadFramesAreSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.dial(t)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{nope")))
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{9}))
	send(t, a, core.Message{Type: core.EventPing})
	await(t, a, core.EventPong)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	h := newHarness(t, Options{ReadLimit: 64})
	a, b := h.dial(t), h.dial(t)
	joinPair(t, b, a, "r1")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","payload":"`+strings.Repeat("x", 128)+`"}`)))
	await(t, b, core.EventPeerDisconnected)
}

func TestDisallowedOriginRejected(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(h.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, h.mgr.Count())
}
