package hook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventscan/internal/config"
	"eventscan/internal/detect"
	"eventscan/internal/logging"
)

func sampleJob(segments int) Job {
	res := detect.Result{Segments: []detect.Segment{}, TotalDurationSeconds: 60, DetectedDurationSeconds: 1.5, ModelVersion: "v1.0.0"}
	for i := 0; i < segments; i++ {
		res.Segments = append(res.Segments, detect.Segment{StartSeconds: float64(i), EndSeconds: float64(i) + 0.75, Confidence: 0.9, Label: "target_event"})
	}
	return Job{ID: "job-1", InputFile: "/tmp/in.wav", ResultPath: "/tmp/job-1.json", Result: res}
}

func TestEnvDescribesJob(t *testing.T) {
	env := Env(sampleJob(2), "box")
	want := []string{
		"EVENTSCAN_JOB_ID=job-1",
		"EVENTSCAN_RESULT_PATH=/tmp/job-1.json",
		"EVENTSCAN_SEGMENTS=2",
		"EVENTSCAN_DETECTED_SECONDS=1.50",
		"EVENTSCAN_HOSTNAME=box",
	}
	joined := strings.Join(env, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Fatalf("missing %q in %v", w, env)
		}
	}
}

func TestShouldRun(t *testing.T) {
	cfg, _ := config.Default()
	r := NewRunner(cfg, logging.NewTestLogger())
	if r.ShouldRun(sampleJob(1)) {
		t.Fatalf("no command configured, hook must not run")
	}
	cfg.Hook.Command = "/bin/true"
	if !r.ShouldRun(sampleJob(0)) {
		t.Fatalf("hook should run for every job by default")
	}
	cfg.Hook.OnlyOnDetection = true
	if r.ShouldRun(sampleJob(0)) {
		t.Fatalf("only_on_detection should skip empty results")
	}
	if !r.ShouldRun(sampleJob(1)) {
		t.Fatalf("only_on_detection should keep results with segments")
	}
}

func TestRunPassesEnvAndResultPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	cfg, _ := config.Default()
	cfg.Hook.Command = "/bin/sh"
	cfg.Hook.Args = []string{"-c", `echo "$EVENTSCAN_SEGMENTS $CUSTOM $1" > "$OUT"`, "hook"}
	cfg.Hook.Env = map[string]string{"CUSTOM": "yes", "OUT": out}

	r := NewRunner(cfg, logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx, sampleJob(3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "3 yes /tmp/job-1.json" {
		t.Fatalf("hook saw %q", got)
	}
}

func TestRunWithoutCommand(t *testing.T) {
	cfg, _ := config.Default()
	r := NewRunner(cfg, logging.NewTestLogger())
	if err := r.Run(context.Background(), sampleJob(0)); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Hook.Command = "/bin/sleep"
	cfg.Hook.Args = []string{"5"}
	cfg.Hook.TimeoutSec = 0.1
	r := NewRunner(cfg, logging.NewTestLogger())
	job := sampleJob(0)
	job.ResultPath = ""
	start := time.Now()
	if err := r.Run(context.Background(), job); err == nil {
		t.Fatalf("expected timeout failure")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout not enforced")
	}
}
