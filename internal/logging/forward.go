package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ForwardFunc receives one log line as (level, message).
type ForwardFunc func(level, message string)

// ForwardHook hands every entry to a function instead of a writer. The worker uses
// it to turn log lines into protocol messages while stdout carries JSON.
type ForwardHook struct {
	forward ForwardFunc
}

// NewForwardHook fires for all levels.
func NewForwardHook(fn ForwardFunc) *ForwardHook {
	return &ForwardHook{forward: fn}
}

func (h *ForwardHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *ForwardHook) Fire(e *logrus.Entry) error {
	h.forward(levelName(e.Level), formatEntry(e))
	return nil
}

// NewForwardingLogger returns a logger whose only sink is fn.
func NewForwardingLogger(level logrus.Level, fn ForwardFunc) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(level)
	logger.AddHook(NewForwardHook(fn))
	return logger
}

func formatEntry(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	return b.String()
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.WarnLevel:
		return "warning"
	case logrus.PanicLevel, logrus.FatalLevel:
		return "error"
	case logrus.TraceLevel:
		return "debug"
	default:
		return l.String()
	}
}
