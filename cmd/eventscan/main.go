package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventscan/internal/control"
	"eventscan/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "eventscan",
		Short: "eventscan — offline audio event detection",
		Long: `eventscan finds the time ranges of a target sound event in audio and video files.
It slices a log-mel spectrogram into overlapping windows, scores them with an ONNX classifier
(CUDA when available, CPU otherwise) and merges positive windows into labelled segments.

Key commands:
  detect <file>             Run detection in the foreground, print JSON or a table
  worker                    JSON-lines protocol on stdin/stdout for host applications
  start|stop|restart        Daemon lifecycle
  submit <file>             Queue a job on the daemon
  status [--json]           Uptime, backend and recent jobs
  model info|set            Inspect or select the ONNX model
  doctor                    Check model, runtime, ffmpeg and config
  service install|uninstall|status   launchd / systemd user service
  health|tail-log|test-hook Liveness, log tail, manual hook

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus) and /healthz on the daemon
  --device auto|cpu|cuda    Inference device
  Env overrides: EVENTSCAN_METRICS_ADDR, EVENTSCAN_LOG_LEVEL/FORMAT,
                 EVENTSCAN_MODEL_PATH, EVENTSCAN_DEVICE, EVENTSCAN_THRESHOLD`,
		Example: `  eventscan detect recording.wav --table
  eventscan detect lecture.mp4 --threshold 0.8 --out result.json
  echo '{"input_file":"clip.flac"}' | eventscan worker
  eventscan start --metrics-addr 127.0.0.1:9318
  eventscan submit clip.wav --merge-gap-ms 500
  eventscan model info`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
	}

	root.Version = version
	root.SetVersionTemplate("eventscan v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/eventscan/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(control.NewDetectCmd(cfgPath))
	root.AddCommand(control.NewWorkerCmd(cfgPath))
	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewSubmitCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewModelCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%seventscan%s — offline audio event detection %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sFrames audio into log-mel windows, scores them with an ONNX model, merges hits into segments.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  eventscan [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  detect <file> [--table]     run detection in the foreground")
		writeln("  worker                      stdin/stdout JSON-lines protocol")
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  submit <file>               queue a job on the daemon")
		writeln("  status [--json]             uptime, backend and recent jobs")
		writeln("  model info|set              inspect or select the ONNX model")
		writeln("  doctor                      check model/runtime/ffmpeg/config")
		writeln("  service install|uninstall|status  launchd / systemd user service")
		writeln("  health                      control-socket liveness ping")
		writeln("  tail-log                    show last log lines")
		writeln("  test-hook <result.json>     invoke hook manually")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus) and /healthz")
		writeln("  --device <dev>          auto, cpu or cuda")
		writeln("  -c, --config <path>     config file (default ~/.config/eventscan/config.toml)")
		writeln("  Env: EVENTSCAN_METRICS_ADDR=host:port, EVENTSCAN_DEVICE=cpu,")
		writeln("       EVENTSCAN_LOG_LEVEL=debug, EVENTSCAN_LOG_FORMAT=json,")
		writeln("       EVENTSCAN_MODEL_PATH=/path/model.onnx, EVENTSCAN_THRESHOLD=0.8")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  eventscan detect recording.wav --table")
		writeln("  eventscan detect lecture.mp4 --threshold 0.8 --out result.json")
		writeln("  echo '{\"input_file\":\"clip.flac\"}' | eventscan worker")
		writeln("  eventscan start --metrics-addr 127.0.0.1:9318")
		writeln("  eventscan submit clip.wav --merge-gap-ms 500")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
