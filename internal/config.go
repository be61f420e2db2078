package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,default=8000"`
	GrpcPort  int    `env:"GRPC_PORT,default=8001"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
	JWTSecret string `env:"JWT_SECRET,required=true"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	PgURL          string `env:"PG_URL"`
	PgMaxConn      int    `env:"PG_MAX_CONN,default=10"`

	HistoryLimit       int           `env:"HISTORY_LIMIT,default=100"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	MaxFrameSize       int64         `env:"MAX_FRAME_SIZE,default=65536"`
	SendTimeout        time.Duration `env:"SEND_TIMEOUT,default=5s"`
	WriteWait          time.Duration `env:"WRITE_WAIT,default=10s"`
	PongWait           time.Duration `env:"PONG_WAIT,default=60s"`
	RateLimitPerSecond float64       `env:"RATE_LIMIT_PER_SECOND,default=0"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST,default=10"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=5s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate catches the combinations go-env cannot express with tags.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with the %s driver", DriverBadger)
		}
	case DriverPostgres:
		if c.PgURL == "" {
			return fmt.Errorf("PG_URL is required with the %s driver", DriverPostgres)
		}
	}
	if c.HistoryLimit < 0 || c.MaxContentLength <= 0 || c.MaxFrameSize <= 0 {
		return fmt.Errorf("HISTORY_LIMIT, MAX_CONTENT_LENGTH and MAX_FRAME_SIZE must be positive")
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND must not be negative, got %v", c.RateLimitPerSecond)
	}
	return nil
}

func (c Config) Origins() []string {
	return SplitList(c.AllowedOrigins)
}

func (c Config) Words() []string {
	return SplitList(c.CensoredWords)
}

// SplitList reads a comma separated variable, dropping blanks.
func SplitList(str string) []string {
	var items []string
	for _, item := range strings.Split(str, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
