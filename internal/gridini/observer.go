package gridini

import (
	"fmt"
	"log/slog"
)

// Observer receives human-readable progress messages during a rewrite.
type Observer interface {
	Log(msg string)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(msg string)

func (f ObserverFunc) Log(msg string) { f(msg) }

type logObserver struct {
	logger *slog.Logger
}

// LogObserver forwards messages to logger at info level. A nil logger uses
// slog.Default().
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return logObserver{logger: logger}
}

func (o logObserver) Log(msg string) {
	o.logger.Info(msg, "component", "gridini")
}

type nopObserver struct{}

func (nopObserver) Log(string) {}

func logf(o Observer, format string, args ...any) {
	o.Log(fmt.Sprintf(format, args...))
}
