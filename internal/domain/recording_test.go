package domain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("MuLaw")
	require.NoError(t, err)
	require.Equal(t, CodecMulaw, c)

	c, err = ParseCodec("pcm_alaw")
	require.NoError(t, err)
	require.Equal(t, CodecAlaw, c)
	require.Equal(t, "pcm_alaw", c.Encoder())

	_, err = ParseCodec("gsm")
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestRawCapturePath(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	p := RawCapturePath("recordings", "r1", "c1", at, ".webm")
	require.Equal(t, filepath.Join("recordings", "audio-r1-c1-1700000000123.webm"), p)
}

func TestRawCapturePathDistinctPerConnection(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	a := RawCapturePath("recordings", "r1", "conn-a", at, "webm")
	b := RawCapturePath("recordings", "r1", "conn-b", at, "webm")
	require.NotEqual(t, a, b)
}

func TestRawCapturePathCannotEscapeDir(t *testing.T) {
	p := RawCapturePath("recordings", "../../etc/passwd", "../c", time.UnixMilli(1), "webm")
	require.Equal(t, "recordings", filepath.Dir(p))
	require.Equal(t, "audio-______etc_passwd-___c-1.webm", filepath.Base(p))
}

func TestEncodedPath(t *testing.T) {
	require.Equal(t, "recordings/audio-r1-5-mulaw.wav", EncodedPath("recordings/audio-r1-5.webm", CodecMulaw))
	require.Equal(t, "recordings/audio-r1-5-alaw.wav", EncodedPath("recordings/audio-r1-5.webm", CodecAlaw))
}

func TestOwnRoom(t *testing.T) {
	id := NewConnectionID()
	require.NotEmpty(t, id)
	require.Equal(t, RoomID(id), id.OwnRoom())
	require.NotEqual(t, id, NewConnectionID())
}
