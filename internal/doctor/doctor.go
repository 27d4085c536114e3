package doctor

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"eventscan/internal/classifier"
	"eventscan/internal/config"
)

// Result represents a diagnostic check. Optional checks do not fail the run.
type Result struct {
	Name     string
	Pass     bool
	Optional bool
	Detail   string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	return []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkFile("model file", cfg.Model.Path),
		checkRuntime(cfg.Model.RuntimeLibrary),
		checkFFmpeg(cfg.Decoder.FFmpegPath),
		checkDetection(cfg),
		checkHookExecutable(cfg.Hook.Command),
	}
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkRuntime(lib string) Result {
	if err := classifier.RuntimeAvailable(lib); err != nil {
		return Result{Name: "onnxruntime", Pass: false, Detail: err.Error()}
	}
	detail := "ok"
	if lib != "" {
		detail = lib
	}
	return Result{Name: "onnxruntime", Pass: true, Detail: detail}
}

// checkFFmpeg only matters for non-WAV input, so it is optional.
func checkFFmpeg(path string) Result {
	label := "ffmpeg"
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Optional: true, Detail: err.Error() + " (only WAV input will work)"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-version").Output()
	if err != nil {
		return Result{Name: label, Optional: true, Detail: err.Error()}
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return Result{Name: label, Pass: true, Optional: true, Detail: strings.TrimSpace(first)}
}

func checkDetection(cfg *config.Config) Result {
	label := "detection"
	if err := cfg.Detection.Validate(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if err := cfg.Features.Validate(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: "ok"}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: true, Optional: true, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}
