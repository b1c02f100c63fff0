package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voicerelay/internal/domain"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	LogLevel       string        `mapstructure:"log_level"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	Secret         string        `mapstructure:"secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Backpressure   string        `mapstructure:"backpressure"`

	Recording RecordingConfig `mapstructure:"recording"`
	ICE       ICEConfig       `mapstructure:"ice"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type RecordingConfig struct {
	Dir             string        `mapstructure:"dir"`
	RawExt          string        `mapstructure:"raw_ext"`
	Codec           string        `mapstructure:"codec"`
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	DeleteRaw       bool          `mapstructure:"delete_raw"`
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout"`
	StartLimit      int           `mapstructure:"start_limit"`
	StartInterval   time.Duration `mapstructure:"start_interval"`
}

type ICEConfig struct {
	Provider       string        `mapstructure:"provider"`
	URLs           []string      `mapstructure:"urls"`
	TURNSecret     string        `mapstructure:"turn_secret"`
	TURNTTL        time.Duration `mapstructure:"turn_ttl"`
	TURNUserPrefix string        `mapstructure:"turn_user_prefix"`

	TwilioAccountSID string        `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string        `mapstructure:"twilio_auth_token"`
	TwilioBaseURL    string        `mapstructure:"twilio_base_url"`
	TwilioTTL        time.Duration `mapstructure:"twilio_ttl"`
}

type UploadConfig struct {
	S3Region    string `mapstructure:"s3_region"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Directory string `mapstructure:"s3_directory"`
}

// Enabled reports whether encoded outputs should be uploaded.
func (u UploadConfig) Enabled() bool { return u.S3Bucket != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("backpressure", "drop")

	v.SetDefault("recording.dir", "recordings")
	v.SetDefault("recording.raw_ext", "webm")
	v.SetDefault("recording.codec", "mulaw")
	v.SetDefault("recording.ffmpeg_path", "ffmpeg")
	v.SetDefault("recording.delete_raw", false)
	v.SetDefault("recording.finalize_timeout", "0s")
	v.SetDefault("recording.start_limit", 5)
	v.SetDefault("recording.start_interval", "10s")

	v.SetDefault("ice.provider", "static")
	v.SetDefault("ice.urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.turn_secret", "")
	v.SetDefault("ice.turn_ttl", "1h")
	v.SetDefault("ice.turn_user_prefix", "relay")
	v.SetDefault("ice.twilio_account_sid", "")
	v.SetDefault("ice.twilio_auth_token", "")
	v.SetDefault("ice.twilio_base_url", "https://api.twilio.com")
	v.SetDefault("ice.twilio_ttl", "1h")

	v.SetDefault("upload.s3_region", "")
	v.SetDefault("upload.s3_bucket", "")
	v.SetDefault("upload.s3_directory", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// RELAY_* environment variables override both, e.g. RELAY_RECORDING_CODEC=alaw.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("recordings", cfg.Recording.Dir).
		Str("codec", cfg.Recording.Codec).
		Str("ice", cfg.ICE.Provider).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read_limit must be > 0")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be > 0")
	}
	if _, err := domain.ParseCodec(c.Recording.Codec); err != nil {
		return fmt.Errorf("recording.codec: %w", err)
	}
	if c.Recording.FinalizeTimeout < 0 {
		return fmt.Errorf("recording.finalize_timeout must not be negative")
	}
	return nil
}
