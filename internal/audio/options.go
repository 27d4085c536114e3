package audio

import (
	"fmt"

	"eventscan/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// OptionsFromConfig builds decoder options from the [decoder] section.
// decoder.extra_args is split shell-style.
func OptionsFromConfig(cfg *config.Config, logger *logrus.Logger) (Options, error) {
	opts := Options{
		FFmpegPath: cfg.Decoder.FFmpegPath,
		Timeout:    cfg.DecoderTimeout(),
		Logger:     logger,
	}
	if cfg.Decoder.ExtraArgs != "" {
		args, err := shlex.Split(cfg.Decoder.ExtraArgs)
		if err != nil {
			return Options{}, fmt.Errorf("%w: decoder.extra_args: %v", config.ErrInvalid, err)
		}
		opts.ExtraArgs = args
	}
	return opts, nil
}
