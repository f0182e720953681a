package logger

import (
	"os"

	"github.com/alfred-dev/incentive-core/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Level comes from
// cfg.LogLevel; when that fails to parse, the level is debug in
// development and info otherwise.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
		if cfg.IsDevelopment() {
			lvl = zerolog.DebugLevel
		}
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Logger()
}
