package detect

import (
	"context"
	"errors"

	"eventscan/internal/audio"

	"github.com/sirupsen/logrus"
)

// LoadFunc decodes a file into a Signal. audio.Load is the production loader.
type LoadFunc func(ctx context.Context, path string, opts audio.Options) (audio.Signal, error)

// LoadSignal decodes path with load (audio.Load when nil), reporting the loading
// stages. Decode failures are validation errors; cancellation passes through.
func LoadSignal(ctx context.Context, load LoadFunc, path string, opts audio.Options, progress *Progress, logger *logrus.Logger) (audio.Signal, error) {
	if load == nil {
		load = audio.Load
	}
	progress.Report(PercentLoading, StageLoading)
	if audio.IsVideo(path) {
		progress.Report(PercentExtracting, StageExtracting)
	}
	if logger != nil {
		logger.Infof("Loading audio: %s", path)
	}
	sig, err := load(ctx, path, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return audio.Signal{}, err
		}
		return audio.Signal{}, Validation(err)
	}
	if logger != nil {
		logger.Infof("Audio duration: %.2fs", sig.Duration())
	}
	return sig, nil
}
