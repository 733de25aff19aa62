package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`
}

// base is usable before Init runs so early failures still log JSON.
var (
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	once sync.Once
)

// New creates a configured zerolog.Logger.
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.ServiceName != "" {
		logger = logger.With().Str(FieldService, cfg.ServiceName).Logger()
	}
	return logger
}

// Init configures the process-wide logger. Call once at service startup.
// Stdlib log output is redirected through zerolog so stray log.Printf
// calls still come out structured.
func Init(cfg Config) {
	once.Do(func() {
		base = New(cfg)

		stdlog.SetFlags(0)
		stdlog.SetOutput(base.With().Str("source", "stdlog").Logger())
	})
}

// L returns the process-wide logger.
func L() *zerolog.Logger {
	return &base
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
