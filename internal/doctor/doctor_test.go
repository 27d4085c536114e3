package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"eventscan/internal/config"
)

func byName(results []Result) map[string]Result {
	m := make(map[string]Result, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func TestRunReportsModelAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = filepath.Join(dir, "config.toml")
	cfg.Model.Path = filepath.Join(dir, "detector.onnx")
	cfg.Decoder.FFmpegPath = filepath.Join(dir, "no-ffmpeg")
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := byName(Run(cfg))
	if !got["config path"].Pass {
		t.Fatalf("config path should pass: %+v", got["config path"])
	}
	if got["model file"].Pass {
		t.Fatalf("missing model should fail")
	}
	if r := got["ffmpeg"]; r.Pass || !r.Optional {
		t.Fatalf("missing ffmpeg should be an optional failure: %+v", r)
	}
	if r := got["hook.command"]; !r.Pass || !r.Optional {
		t.Fatalf("unset hook should be optional and passing: %+v", r)
	}
	if !got["detection"].Pass {
		t.Fatalf("default detection options should validate: %+v", got["detection"])
	}

	if err := os.WriteFile(cfg.Model.Path, []byte("onnx"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if !byName(Run(cfg))["model file"].Pass {
		t.Fatalf("present model should pass")
	}
}

func TestDetectionCheckFailsOnBadOptions(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Detection.HopSizeMS = 0
	if r := checkDetection(cfg); r.Pass {
		t.Fatalf("zero hop should fail: %+v", r)
	}
}

func TestHookExecutableChecks(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := checkHookExecutable(script); r.Pass {
		t.Fatalf("non-executable hook should fail")
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if r := checkHookExecutable(script); !r.Pass {
		t.Fatalf("executable hook should pass: %+v", r)
	}
	if r := checkHookExecutable(dir); r.Pass {
		t.Fatalf("directory should fail")
	}
}
