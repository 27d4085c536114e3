package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultLabel         = "target_event"
	DefaultModelVersion  = "v1.0.0"
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/eventscan"
	defaultConfigDir     = ".config/eventscan"
)

// ErrInvalid marks configuration values the pipeline refuses to start with.
var ErrInvalid = errors.New("invalid configuration")

// Detection holds the per-run detection options. Durations are milliseconds.
type Detection struct {
	WindowSizeMS         int     `toml:"window_size_ms" json:"window_size_ms"`
	HopSizeMS            int     `toml:"hop_size_ms" json:"hop_size_ms"`
	ConfidenceThreshold  float64 `toml:"confidence_threshold" json:"confidence_threshold"`
	MinSegmentDurationMS int     `toml:"min_segment_duration_ms" json:"min_segment_duration_ms"`
	MergeGapMS           int     `toml:"merge_gap_ms" json:"merge_gap_ms"`
	Label                string  `toml:"label" json:"-"`
}

// Features holds the fixed transform parameters the model was trained with.
type Features struct {
	SampleRate   int     `toml:"sample_rate"`
	NMels        int     `toml:"n_mels"`
	NFFT         int     `toml:"n_fft"`
	HopLength    int     `toml:"hop_length"`
	WindowFrames int     `toml:"window_frames"` // 0 derives floor(window / hop_length)
	TopDB        float64 `toml:"top_db"`
}

// Config holds user configuration loaded from TOML.
type Config struct {
	Detection Detection `toml:"detection"`
	Features  Features  `toml:"features"`

	Model struct {
		Path           string `toml:"path"`
		Version        string `toml:"version"`
		InputName      string `toml:"input_name"`
		OutputName     string `toml:"output_name"`
		Device         string `toml:"device"` // auto, cpu, cuda
		GPUBatchSize   int    `toml:"gpu_batch_size"`
		CPUBatchSize   int    `toml:"cpu_batch_size"`
		CUDADeviceID   int    `toml:"cuda_device_id"`
		GPUMemLimitMB  int    `toml:"gpu_mem_limit_mb"`
		RuntimeLibrary string `toml:"runtime_library"`
	} `toml:"model"`

	Decoder struct {
		FFmpegPath string  `toml:"ffmpeg_path"`
		TimeoutSec float64 `toml:"timeout_sec"`
		ExtraArgs  string  `toml:"extra_args"`
	} `toml:"decoder"`

	Hook struct {
		Command         string            `toml:"command"`
		Args            []string          `toml:"args"`
		TimeoutSec      float64           `toml:"timeout_sec"`
		Env             map[string]string `toml:"env"`
		OnlyOnDetection bool              `toml:"only_on_detection"` // skip jobs with no segments
	} `toml:"hook"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		ResultsDir string `toml:"results_dir"`
		SocketPath string `toml:"socket_path"`
		PidPath    string `toml:"pid_path"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Jobs struct {
		QueueSize int `toml:"queue_size"`
	} `toml:"jobs"`
}

// DefaultDetection returns the detection options used when a request omits them.
func DefaultDetection() Detection {
	return Detection{
		WindowSizeMS:         1000,
		HopSizeMS:            250,
		ConfidenceThreshold:  0.7,
		MinSegmentDurationMS: 500,
		MergeGapMS:           300,
		Label:                DefaultLabel,
	}
}

// DefaultFeatures returns the mel front-end parameters of the exported model.
func DefaultFeatures() Features {
	return Features{
		SampleRate: 16000,
		NMels:      128,
		NFFT:       2048,
		HopLength:  512,
		TopDB:      80,
	}
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/eventscan for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "eventscan")
	}

	cfg := &Config{}
	cfg.Detection = DefaultDetection()
	cfg.Features = DefaultFeatures()

	cfg.Model.Path = filepath.Join(stateDir, "models", "detector.onnx")
	cfg.Model.Version = DefaultModelVersion
	cfg.Model.InputName = "mel_spectrogram"
	cfg.Model.OutputName = "" // first declared output
	cfg.Model.Device = "auto"
	cfg.Model.GPUBatchSize = 32
	cfg.Model.CPUBatchSize = 1
	cfg.Model.GPUMemLimitMB = 4096

	cfg.Decoder.FFmpegPath = "ffmpeg"
	cfg.Decoder.TimeoutSec = 600

	cfg.Hook.TimeoutSec = 10
	cfg.Hook.Env = map[string]string{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "eventscan.log")
	cfg.Paths.ResultsDir = filepath.Join(stateDir, "results")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "eventscan.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "eventscan.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Jobs.QueueSize = 16

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), cfg.Paths.ResultsDir} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVENTSCAN_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("EVENTSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EVENTSCAN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EVENTSCAN_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("EVENTSCAN_DEVICE"); v != "" {
		cfg.Model.Device = strings.ToLower(v)
	}
	if v := os.Getenv("EVENTSCAN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.ConfidenceThreshold = f
		}
	}
}

// DecoderTimeout returns the ffmpeg timeout as a duration (0 disables it).
func (c *Config) DecoderTimeout() time.Duration {
	return time.Duration(c.Decoder.TimeoutSec * float64(time.Second))
}
