package recording

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
)

// DeleteRawHook removes the raw capture once the encoded file exists.
func DeleteRawHook() Hook {
	return func(_ context.Context, o Outcome) {
		if err := os.Remove(o.RawPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("module", "app.recording").Str("path", o.RawPath).Msg("cannot remove raw capture")
			return
		}
		log.Debug().Str("module", "app.recording").Str("path", o.RawPath).Msg("removed raw capture")
	}
}

// UploadHook copies the encoded file to u, keyed by its basename. Failures are
// logged only; the local file stays either way.
func UploadHook(u core.Uploader) Hook {
	return func(ctx context.Context, o Outcome) {
		logger := log.With().
			Str("module", "app.recording").
			Str("conn", string(o.Conn)).
			Str("room", string(o.Room)).
			Str("path", o.EncodedPath).
			Logger()

		f, err := os.Open(o.EncodedPath)
		if err != nil {
			logger.Error().Err(err).Msg("cannot open encoded file for upload")
			return
		}
		defer f.Close()

		key := filepath.Base(o.EncodedPath)
		if err := u.Upload(ctx, key, f); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("cannot upload encoded file")
			return
		}
		logger.Info().Str("key", key).Msg("uploaded encoded file")
	}
}
