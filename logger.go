package gpuplay

import (
	"log/slog"

	"github.com/gogpu/gpuplay/internal/logging"
)

// SetLogger configures the logger for gpuplay and all its sub-packages.
// By default, gpuplay produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to disable logging (restore default silent
// behavior).
//
// Log levels used by gpuplay:
//   - [slog.LevelDebug]: per-action replay detail, encoder state changes
//   - [slog.LevelInfo]: trace open and close, device creation and drop
//   - [slog.LevelWarn]: dropped trace records, failed replays
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	gpuplay.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by gpuplay.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
