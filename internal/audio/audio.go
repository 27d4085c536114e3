package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TargetRate is the sample rate every Signal is delivered at.
const TargetRate = 16000

var (
	// ErrUnsupported is returned for extensions neither decoder handles.
	ErrUnsupported = errors.New("unsupported audio format")
	// ErrNoSamples is returned when decoding yields an empty signal.
	ErrNoSamples = errors.New("audio contains no samples")
)

var audioExts = map[string]bool{
	".wav": true, ".mp3": true, ".flac": true, ".ogg": true,
	".m4a": true, ".aac": true, ".wma": true, ".opus": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".webm": true, ".flv": true, ".wmv": true, ".m4v": true,
}

// Signal is a mono sample sequence in [-1, 1] at a fixed rate.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the signal length in seconds.
func (s Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// IsVideo reports whether path has a video container extension.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// SupportedFormats lists the accepted extensions, audio first.
func SupportedFormats() (audioFormats, videoFormats []string) {
	for ext := range audioExts {
		audioFormats = append(audioFormats, ext)
	}
	for ext := range videoExts {
		videoFormats = append(videoFormats, ext)
	}
	sort.Strings(audioFormats)
	sort.Strings(videoFormats)
	return audioFormats, videoFormats
}

// Options controls how Load decodes non-WAV input.
type Options struct {
	FFmpegPath string
	Timeout    time.Duration
	ExtraArgs  []string
	Logger     *logrus.Logger
}

// Load decodes path into a peak-normalized mono Signal at TargetRate.
func Load(ctx context.Context, path string, opts Options) (Signal, error) {
	if _, err := os.Stat(path); err != nil {
		return Signal{}, fmt.Errorf("open input: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !audioExts[ext] && !videoExts[ext] {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}

	var (
		samples []float64
		err     error
	)
	if ext == ".wav" {
		samples, err = loadWAV(path, opts.Logger)
	} else {
		dec := FFmpeg{Path: opts.FFmpegPath, Timeout: opts.Timeout, ExtraArgs: opts.ExtraArgs, Logger: opts.Logger}
		samples, err = dec.Decode(ctx, path)
	}
	if err != nil {
		return Signal{}, err
	}
	if len(samples) == 0 {
		return Signal{}, ErrNoSamples
	}
	return Signal{Samples: Normalize(samples), SampleRate: TargetRate}, nil
}

func loadWAV(path string, logger *logrus.Logger) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	samples, rate, err := DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	if rate != TargetRate {
		if logger != nil {
			logger.WithField("from", rate).Debugf("resampling to %d Hz", TargetRate)
		}
		return Resample(samples, rate, TargetRate)
	}
	return samples, nil
}
