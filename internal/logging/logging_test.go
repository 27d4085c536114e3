package logging

import (
	"os"
	"path/filepath"
	"testing"

	"eventscan/internal/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesToLogPath(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	dir := t.TempDir()
	cfg.Paths.StateDir = dir
	cfg.Paths.ResultsDir = filepath.Join(dir, "results")
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "eventscan.log")
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level not applied: %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
	logger.Info("hello")
	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file empty")
	}
}

func TestForwardingLogger(t *testing.T) {
	type line struct{ level, msg string }
	var got []line
	logger := NewForwardingLogger(logrus.InfoLevel, func(level, msg string) {
		got = append(got, line{level, msg})
	})
	logger.Debug("hidden")
	logger.WithField("backend", "cpu").WithField("batch", 1).Warn("fallback")
	logger.Info("ready")

	if len(got) != 2 {
		t.Fatalf("expected 2 forwarded lines, got %d: %+v", len(got), got)
	}
	if got[0].level != "warning" || got[0].msg != "fallback backend=cpu batch=1" {
		t.Fatalf("unexpected first line: %+v", got[0])
	}
	if got[1].level != "info" || got[1].msg != "ready" {
		t.Fatalf("unexpected second line: %+v", got[1])
	}
}
