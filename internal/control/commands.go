package control

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"eventscan/internal/config"
	"eventscan/internal/detect"
	"eventscan/internal/doctor"
	"eventscan/internal/hook"
	"eventscan/internal/logging"
	"eventscan/internal/worker"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpStatus}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: %v\nuptime: %.1fs\nbackend: %s\nqueued: %d\n", status.Running, status.UptimeSec, status.Backend, status.Queued)
			for _, j := range status.Jobs {
				fmt.Fprintln(out, formatJob(j))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func formatJob(j JobSummary) string {
	line := fmt.Sprintf("%s  %-7s %s  %s", j.SubmittedAt.Format("15:04:05"), j.State, j.ID[:min(8, len(j.ID))], filepath.Base(j.InputFile))
	switch j.State {
	case JobDone:
		line += fmt.Sprintf("  %d segments, %.2fs", j.Segments, j.DetectedSeconds)
	case JobFailed:
		line += "  " + j.Error
	}
	return line
}

// NewHealthCmd pings the daemon over the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpHealth}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("health failed: %s", resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

// NewSubmitCmd queues a file on the running daemon.
func NewSubmitCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Queue a detection job on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			req := Request{Op: OpSubmit, InputFile: input, Config: overridesFromFlags(cmd)}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, req, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("submit failed: %s", resp.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", resp.JobID)
			return nil
		},
	}
	addDetectionFlags(cmd)
	return cmd
}

// NewWorkerCmd speaks the JSON-lines worker protocol on stdin/stdout.
func NewWorkerCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Read one JSON request on stdin, stream progress and the result on stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			inv := worker.NewInvocation(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			return inv.Run(cmd.Context())
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show the last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			lines, err := tailFile(cfg.Paths.LogPath, n)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// NewTestHookCmd runs the configured hook against a saved result.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-hook <result.json>",
		Short: "Run the hook against a saved detection result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var res detect.Result
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("parse result: %w", err)
			}
			path, _ := filepath.Abs(args[0])
			job := hook.Job{ID: uuid.NewString(), ResultPath: path, Result: res}
			return hook.NewRunner(cfg, logger).Run(cmd.Context(), job)
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check model, runtime, ffmpeg and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = failed || !r.Optional
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
