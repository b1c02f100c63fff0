// Package transcode runs ffmpeg to turn raw captures into telephony WAV files.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/domain"
)

const stderrTail = 4 << 10

// FFmpeg converts captures by running an ffmpeg binary, one process per file.
type FFmpeg struct {
	Path string
	log  zerolog.Logger
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		Path: path,
		log:  log.With().Str("module", "adapters.transcode").Str("bin", path).Logger(),
	}
}

// Preflight checks that the binary can be found.
func (f *FFmpeg) Preflight() (string, error) {
	resolved, err := exec.LookPath(f.Path)
	if err != nil {
		return "", &SpawnError{Path: f.Path, Err: err}
	}
	return resolved, nil
}

// Args builds the command line: overwrite, 8 kHz, mono, codec's G.711 encoder.
func Args(in, out string, codec domain.Codec) []string {
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", in,
		"-ar", strconv.Itoa(domain.EncodedSampleRate),
		"-ac", strconv.Itoa(domain.EncodedChannels),
		"-c:a", codec.Encoder(),
		out,
	}
}

// Convert writes the encoded file next to in and returns its path. It blocks until ffmpeg exits.
func (f *FFmpeg) Convert(ctx context.Context, in string, codec domain.Codec) (string, error) {
	out := domain.EncodedPath(in, codec)
	cmd := exec.CommandContext(ctx, f.Path, Args(in, out, codec)...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		f.log.Error().Err(err).Str("input", in).Msg("cannot spawn ffmpeg")
		return "", &SpawnError{Path: f.Path, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return "", &TranscodeError{
			Input:    in,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	f.log.Debug().Str("input", in).Str("output", out).Dur("took", time.Since(started)).Msg("ffmpeg done")
	return out, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
