package classifier

import (
	"fmt"
	"os"
	"strings"

	"eventscan/internal/config"

	"github.com/sirupsen/logrus"
)

// Options selects and tunes the backend.
type Options struct {
	Path           string
	InputName      string
	OutputName     string
	Device         string // auto, cpu, cuda
	GPUBatchSize   int
	CPUBatchSize   int
	CUDADeviceID   int
	GPUMemLimitMB  int
	RuntimeLibrary string
	Logger         *logrus.Logger
}

// OptionsFromConfig copies the [model] section.
func OptionsFromConfig(cfg *config.Config, logger *logrus.Logger) Options {
	return Options{
		Path:           cfg.Model.Path,
		InputName:      cfg.Model.InputName,
		OutputName:     cfg.Model.OutputName,
		Device:         cfg.Model.Device,
		GPUBatchSize:   cfg.Model.GPUBatchSize,
		CPUBatchSize:   cfg.Model.CPUBatchSize,
		CUDADeviceID:   cfg.Model.CUDADeviceID,
		GPUMemLimitMB:  cfg.Model.GPUMemLimitMB,
		RuntimeLibrary: cfg.Model.RuntimeLibrary,
		Logger:         logger,
	}
}

// BatchSize returns the configured batch size for backend b.
func (o Options) BatchSize(b Backend) int {
	n := o.CPUBatchSize
	if b == BackendCUDA {
		n = o.GPUBatchSize
	}
	return max(1, n)
}

// LoadFunc initializes one backend.
type LoadFunc func(b Backend, opts Options) (Classifier, error)

// Open loads the model at opts.Path on the requested device.
func Open(opts Options) (Classifier, error) {
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, opts.Path)
	}
	return Negotiate(opts, loadBackend)
}

// Negotiate picks a backend. auto tries CUDA and re-initializes once on CPU if
// that fails; cuda never falls back; cpu never touches CUDA.
func Negotiate(opts Options, load LoadFunc) (Classifier, error) {
	device := strings.ToLower(strings.TrimSpace(opts.Device))
	switch device {
	case "cpu":
		return loadLogged(BackendCPU, opts, load)
	case "cuda":
		c, err := loadLogged(BackendCUDA, opts, load)
		if err != nil {
			return nil, fmt.Errorf("cuda requested: %w", err)
		}
		return c, nil
	case "", "auto":
		c, err := loadLogged(BackendCUDA, opts, load)
		if err == nil {
			return c, nil
		}
		if opts.Logger != nil {
			opts.Logger.WithError(err).Warn("accelerated backend unavailable, falling back to CPU")
		}
		return loadLogged(BackendCPU, opts, load)
	default:
		return nil, fmt.Errorf("%w: unknown device %q", config.ErrInvalid, opts.Device)
	}
}

func loadLogged(b Backend, opts Options, load LoadFunc) (Classifier, error) {
	c, err := load(b, opts)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		caps := c.Capabilities()
		opts.Logger.WithField("backend", caps.Backend).Infof("Batch size: %d", caps.PreferredBatchSize)
	}
	return c, nil
}
