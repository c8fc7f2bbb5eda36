// Package notify is the boundary to the user-facing toast surface. The
// concern controllers decide what message to show; how it is rendered
// belongs to whoever implements Notifier.
package notify

import "go.uber.org/zap"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to the Notifier interface.
type Func func(n Notification)

func (f Func) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to the log; the default sink when no
// delivery channel is attached.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) {
	l.logger.Info("user notification",
		zap.String("level", string(n.Level)),
		zap.String("text", n.Text),
	)
}
