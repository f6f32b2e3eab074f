package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	CatalogPath string `env:"CATALOG_PATH"`

	DefaultRoundSeconds     int           `env:"DEFAULT_ROUND_SECONDS" envDefault:"300"`
	MinRoundSeconds         int           `env:"MIN_ROUND_SECONDS" envDefault:"30"`
	MaxRoundSeconds         int           `env:"MAX_ROUND_SECONDS" envDefault:"3600"`
	DefaultPoolSize         int           `env:"DEFAULT_POOL_SIZE" envDefault:"50"`
	VoteConfirmationSeconds int           `env:"VOTE_CONFIRMATION_SECONDS" envDefault:"10"`
	EmptyRoomGrace          time.Duration `env:"EMPTY_ROOM_GRACE" envDefault:"30s"`
	InactivityTimeout       time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"10m"`
	DisconnectGrace         time.Duration `env:"DISCONNECT_GRACE" envDefault:"2m"`

	ImageAPIURL        string        `env:"IMAGE_API_URL"`
	ImageAPIKey        string        `env:"IMAGE_API_KEY"`
	ImageResultPath    string        `env:"IMAGE_RESULT_PATH" envDefault:"photos.0.src.medium"`
	ImageLookupTimeout time.Duration `env:"IMAGE_LOOKUP_TIMEOUT" envDefault:"5s"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"outsider.rooms"`

	WSMessagesPerSecond float64  `env:"WS_MESSAGES_PER_SECOND" envDefault:"10"`
	WSBurst             int      `env:"WS_BURST" envDefault:"20"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

var ErrInvalid = errors.New("invalid configuration")

// Load parses the environment and checks the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalid, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be json or console", ErrInvalid)
	}
	if c.MinRoundSeconds <= 0 || c.MinRoundSeconds > c.MaxRoundSeconds {
		return fmt.Errorf("%w: round bounds %d..%d", ErrInvalid, c.MinRoundSeconds, c.MaxRoundSeconds)
	}
	if c.DefaultRoundSeconds < c.MinRoundSeconds || c.DefaultRoundSeconds > c.MaxRoundSeconds {
		return fmt.Errorf("%w: DEFAULT_ROUND_SECONDS outside %d..%d", ErrInvalid, c.MinRoundSeconds, c.MaxRoundSeconds)
	}
	if c.DefaultPoolSize < 1 {
		return fmt.Errorf("%w: DEFAULT_POOL_SIZE must be positive", ErrInvalid)
	}
	if c.VoteConfirmationSeconds < 1 {
		return fmt.Errorf("%w: VOTE_CONFIRMATION_SECONDS must be positive", ErrInvalid)
	}
	if c.EmptyRoomGrace <= 0 || c.InactivityTimeout <= 0 || c.DisconnectGrace <= 0 {
		return fmt.Errorf("%w: eviction delays must be positive", ErrInvalid)
	}
	if c.WSMessagesPerSecond <= 0 || c.WSBurst < 1 {
		return fmt.Errorf("%w: websocket rate limit must be positive", ErrInvalid)
	}
	return nil
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c *Config) ImagesEnabled() bool { return c.ImageAPIURL != "" }

func (c *Config) BusEnabled() bool { return c.NATSURL != "" }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) DefaultRound() time.Duration { return seconds(c.DefaultRoundSeconds) }

func (c *Config) MinRound() time.Duration { return seconds(c.MinRoundSeconds) }

func (c *Config) MaxRound() time.Duration { return seconds(c.MaxRoundSeconds) }

func (c *Config) ConfirmationWindow() time.Duration { return seconds(c.VoteConfirmationSeconds) }
