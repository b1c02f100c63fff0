package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Codec string

const (
	CodecMulaw Codec = "mulaw"
	CodecAlaw  Codec = "alaw"
)

const (
	EncodedExt        = "wav"
	EncodedSampleRate = 8000
	EncodedChannels   = 1
)

var ErrUnknownCodec = errors.New("unknown codec")

func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(strings.TrimSpace(s))) {
	case CodecMulaw, "ulaw", "pcm_mulaw":
		return CodecMulaw, nil
	case CodecAlaw, "pcm_alaw":
		return CodecAlaw, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Encoder is the ffmpeg encoder name for the codec.
func (c Codec) Encoder() string {
	switch c {
	case CodecAlaw:
		return "pcm_alaw"
	default:
		return "pcm_mulaw"
	}
}

// RawCapturePath builds dir/audio-<room>-<conn>-<unix millis>.<ext>.
func RawCapturePath(dir string, room RoomID, conn ConnectionID, at time.Time, ext string) string {
	name := fmt.Sprintf("audio-%s-%s-%d.%s",
		fileSafe(string(room)), fileSafe(string(conn)), at.UnixMilli(), strings.TrimPrefix(ext, "."))
	return filepath.Join(dir, name)
}

// EncodedPath keeps the raw capture's stem and appends the codec suffix.
func EncodedPath(rawPath string, c Codec) string {
	stem := strings.TrimSuffix(rawPath, filepath.Ext(rawPath))
	return fmt.Sprintf("%s-%s.%s", stem, c, EncodedExt)
}

// fileSafe maps a room id onto characters that cannot escape the recordings dir.
func fileSafe(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
