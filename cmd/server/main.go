package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/voicerelay/internal/adapters/http"
	"github.com/dkeye/voicerelay/internal/adapters/ice"
	"github.com/dkeye/voicerelay/internal/adapters/storage"
	"github.com/dkeye/voicerelay/internal/adapters/transcode"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/app/recording"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ffmpeg := transcode.NewFFmpeg(cfg.Recording.FFmpegPath)
	if bin, err := ffmpeg.Preflight(); err != nil {
		log.Fatal().Err(err).Msg("ffmpeg is not installed or not in PATH")
	} else {
		log.Info().Str("ffmpeg", bin).Msg("transcoder ready")
	}

	if err := os.MkdirAll(cfg.Recording.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Recording.Dir).Msg("cannot create recordings dir")
	}

	codec, err := domain.ParseCodec(cfg.Recording.Codec)
	if err != nil {
		log.Fatal().Err(err).Msg("bad recording codec")
	}

	var hooks []recording.Hook
	if cfg.Upload.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, cfg.Upload)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot set up S3 upload")
		}
		hooks = append(hooks, recording.UploadHook(uploader))
		log.Info().Str("bucket", cfg.Upload.S3Bucket).Str("directory", cfg.Upload.S3Directory).Msg("S3 upload enabled")
	}
	if cfg.Recording.DeleteRaw {
		hooks = append(hooks, recording.DeleteRawHook())
	}

	iceProvider, err := ice.New(cfg.ICE)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot set up ice provider")
	}

	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}

	relay := app.NewRelay(app.NewHub(), policy)
	recordings := &recording.Factory{
		Store: recording.StoreConfig{
			Dir:        cfg.Recording.Dir,
			RawExt:     cfg.Recording.RawExt,
			Codec:      codec,
			Transcoder: ffmpeg,
			Hooks:      hooks,
		},
		StartLimit:    cfg.Recording.StartLimit,
		StartInterval: cfg.Recording.StartInterval,
	}
	manager := app.NewConnectionManager(relay, recordings, cfg.Recording.FinalizeTimeout)

	r := router.SetupRouter(ctx, cfg, router.Deps{Manager: manager, ICE: iceProvider})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Open captures are flushed and transcoded before exit.
	manager.CloseAll(context.Background())
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
