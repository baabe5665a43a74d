package observability

import (
	"os"

	"github.com/danmuck/bridgectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the process logger tagged with app.
func InitLogger(app string) zerolog.Logger {
	cfg := logging.Active()
	ctx := zerolog.New(logging.Writer(os.Stdout)).With().Str("app", app)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
