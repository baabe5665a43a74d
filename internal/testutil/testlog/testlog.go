package testlog

import (
	"fmt"
	"testing"

	"github.com/danmuck/bridgectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Logger returns a logger that writes through t.Log so output is attached to
// the test that produced it.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(t))).With().Str("test", t.Name()).Logger()
}

func Logf(format string, args ...any) {
	log.Info().Msg(fmt.Sprintf(format, args...))
}
