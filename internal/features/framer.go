package features

import (
	"context"
	"errors"
	"fmt"
	"math"

	"eventscan/internal/audio"
	"eventscan/internal/config"
)

// ErrEmptySignal is returned when there are no samples to frame.
var ErrEmptySignal = errors.New("empty signal")

// Layout is the window geometry of one framing run.
type Layout struct {
	Count           int // windows
	WindowSamples   int
	HopSamples      int
	FramesPerWindow int
	HopLength       int // STFT hop in samples
	SpecFrames      int
}

// StartSample returns the first sample of window i on the hop grid.
func (l Layout) StartSample(i int) int { return i * l.HopSamples }

// StartFrame returns the spectrogram frame nearest to window i's first sample.
func (l Layout) StartFrame(i int) int {
	return int(math.Round(float64(l.StartSample(i)) / float64(l.HopLength)))
}

// WindowCount returns max(1, floor((n-w)/h)+1) for a signal of n samples.
func WindowCount(n, w, h int) int {
	if n < w {
		return 1
	}
	return (n-w)/h + 1
}

// NewLayout derives the window geometry for n samples.
func NewLayout(n int, feat config.Features, det config.Detection) (Layout, error) {
	if n <= 0 {
		return Layout{}, ErrEmptySignal
	}
	if err := feat.Validate(); err != nil {
		return Layout{}, err
	}
	if err := det.Validate(); err != nil {
		return Layout{}, err
	}
	l := Layout{
		WindowSamples: det.WindowSamples(feat.SampleRate),
		HopSamples:    det.HopSamples(feat.SampleRate),
		HopLength:     feat.HopLength,
		SpecFrames:    FrameCount(n, feat.HopLength),
	}
	if l.WindowSamples <= 0 || l.HopSamples <= 0 {
		return Layout{}, fmt.Errorf("%w: window and hop must span at least one sample", config.ErrInvalid)
	}
	l.FramesPerWindow = l.WindowSamples / feat.HopLength
	if feat.WindowFrames > 0 {
		l.FramesPerWindow = feat.WindowFrames
	}
	if l.FramesPerWindow <= 0 {
		return Layout{}, fmt.Errorf("%w: window of %d samples is shorter than hop_length %d", config.ErrInvalid, l.WindowSamples, feat.HopLength)
	}
	l.Count = WindowCount(n, l.WindowSamples, l.HopSamples)
	return l, nil
}

// Window is one normalized classifier input.
type Window struct {
	Index    int
	Start    float64   // seconds
	Features []float32 // NMels x FramesPerWindow, mel-major
}

// Framer slices a single full-signal spectrogram into normalized windows.
type Framer struct {
	spec   *Spectrogram
	layout Layout
	feat   config.Features
}

// NewFramer computes the spectrogram of sig once and prepares window extraction.
func NewFramer(ctx context.Context, sig audio.Signal, feat config.Features, det config.Detection) (*Framer, error) {
	if len(sig.Samples) == 0 {
		return nil, ErrEmptySignal
	}
	if sig.SampleRate != feat.SampleRate {
		return nil, fmt.Errorf("%w: signal rate %d does not match feature rate %d", config.ErrInvalid, sig.SampleRate, feat.SampleRate)
	}
	layout, err := NewLayout(len(sig.Samples), feat, det)
	if err != nil {
		return nil, err
	}
	spec, err := ComputeSpectrogram(ctx, sig.Samples, feat)
	if err != nil {
		return nil, err
	}
	return &Framer{spec: spec, layout: layout, feat: feat}, nil
}

// Len returns the number of windows.
func (f *Framer) Len() int { return f.layout.Count }

// Layout returns the window geometry.
func (f *Framer) Layout() Layout { return f.layout }

// Shape returns (mel bins, frames) of every window.
func (f *Framer) Shape() (int, int) { return f.spec.NMels, f.layout.FramesPerWindow }

// Size returns the number of values in one window.
func (f *Framer) Size() int { return f.spec.NMels * f.layout.FramesPerWindow }

// StartFrame returns the first spectrogram frame of window i.
func (f *Framer) StartFrame(i int) int { return f.layout.StartFrame(i) }

// StartTime returns window i's start in seconds, i*hop/sample_rate.
func (f *Framer) StartTime(i int) float64 {
	return float64(f.layout.StartSample(i)) / float64(f.feat.SampleRate)
}

// Padded reports whether window i extends past the last spectrogram frame.
func (f *Framer) Padded(i int) bool {
	return f.StartFrame(i)+f.layout.FramesPerWindow > f.spec.Frames
}

// Window extracts and normalizes window i.
func (f *Framer) Window(i int) Window {
	dst := make([]float32, f.Size())
	f.Fill(i, dst)
	return Window{Index: i, Start: f.StartTime(i), Features: dst}
}

// Fill writes the normalized features of window i into dst, which must hold Size values.
func (f *Framer) Fill(i int, dst []float32) {
	nMels, frames := f.Shape()
	start := f.StartFrame(i)
	power := make([]float64, nMels*frames)
	for t := 0; t < frames; t++ {
		src := start + t
		if src >= f.spec.Frames {
			// right-edge zero padding
			continue
		}
		row := f.spec.Frame(src)
		for m := 0; m < nMels; m++ {
			power[m*frames+t] = float64(row[m])
		}
	}
	NormalizeWindow(power, f.feat.TopDB)
	for k, v := range power {
		dst[k] = float32(v)
	}
}
