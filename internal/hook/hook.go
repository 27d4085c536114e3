package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"eventscan/internal/config"
	"eventscan/internal/detect"

	"github.com/sirupsen/logrus"
)

// ErrNoCommand is returned by Run when hook.command is empty.
var ErrNoCommand = errors.New("no hook.command configured")

// Job describes a finished detection handed to the hook.
type Job struct {
	ID         string
	InputFile  string
	ResultPath string
	Result     detect.Result
}

// Runner executes the post-detection hook command.
type Runner struct {
	cfg      *config.Config
	logger   *logrus.Logger
	hostname string
}

func NewRunner(cfg *config.Config, logger *logrus.Logger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		hostname: host,
	}
}

// Enabled reports whether a hook command is configured.
func (r *Runner) Enabled() bool {
	return strings.TrimSpace(r.cfg.Hook.Command) != ""
}

// ShouldRun reports whether job qualifies for the hook.
func (r *Runner) ShouldRun(job Job) bool {
	if !r.Enabled() {
		return false
	}
	if r.cfg.Hook.OnlyOnDetection && len(job.Result.Segments) == 0 {
		return false
	}
	return true
}

// Run executes the configured command. The result path is appended as the last
// argument and the summary is passed through the environment.
func (r *Runner) Run(ctx context.Context, job Job) error {
	cmdStr := r.cfg.Hook.Command
	if cmdStr == "" {
		return ErrNoCommand
	}
	args := append([]string{}, r.cfg.Hook.Args...)
	if job.ResultPath != "" {
		args = append(args, job.ResultPath)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Hook.TimeoutSec > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*r.cfg.Hook.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, cmdStr, args...)
	cmd.Env = append(os.Environ(), Env(job, r.hostname)...)
	for k, v := range r.cfg.Hook.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	out, err := cmd.CombinedOutput()
	if len(out) > 0 && r.logger != nil {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// Env returns the EVENTSCAN_* variables describing job.
func Env(job Job, hostname string) []string {
	return []string{
		"EVENTSCAN_JOB_ID=" + job.ID,
		"EVENTSCAN_INPUT_FILE=" + job.InputFile,
		"EVENTSCAN_RESULT_PATH=" + job.ResultPath,
		"EVENTSCAN_SEGMENTS=" + strconv.Itoa(len(job.Result.Segments)),
		"EVENTSCAN_DETECTED_SECONDS=" + strconv.FormatFloat(job.Result.DetectedDurationSeconds, 'f', 2, 64),
		"EVENTSCAN_HOSTNAME=" + hostname,
	}
}
