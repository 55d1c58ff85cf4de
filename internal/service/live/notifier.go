package live

import (
	"log/slog"

	"github.com/cmlabs-hris/hris-live-attendance/internal/domain/live"
)

// LogNotifier reports interactive refresh outcomes through slog.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n LogNotifier) Info(message string) {
	n.logger().Info(message)
}

func (n LogNotifier) Error(err error) {
	n.logger().Error("Live view error", "error", err)
}

var _ live.Notifier = LogNotifier{}
