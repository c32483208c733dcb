package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
)

// SetupLogger builds the process-wide JSON logger annotated with service and
// environment. Dev runs at debug level, everything else at info.
func SetupLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
