package features

import (
	"context"
	"errors"
	"fmt"

	"eventscan/internal/config"
)

// Spectrogram is the mel power spectrogram of a whole signal, stored frame-major.
type Spectrogram struct {
	NMels  int
	Frames int
	power  []float32 // Frames * NMels
}

// Frame returns the mel power values of frame f. The slice must not be modified.
func (s *Spectrogram) Frame(f int) []float32 {
	return s.power[f*s.NMels : (f+1)*s.NMels]
}

// At returns mel bin m of frame f.
func (s *Spectrogram) At(m, f int) float32 {
	return s.power[f*s.NMels+m]
}

// ComputeSpectrogram runs one STFT over samples and projects every frame onto the mel bank.
func ComputeSpectrogram(ctx context.Context, samples []float64, p config.Features) (*Spectrogram, error) {
	if len(samples) == 0 {
		return nil, errors.New("spectrogram of empty signal")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bank := NewMelBank(p.SampleRate, p.NFFT, p.NMels)
	spec := &Spectrogram{
		NMels:  p.NMels,
		Frames: FrameCount(len(samples), p.HopLength),
	}
	spec.power = make([]float32, spec.Frames*spec.NMels)
	err := PowerSTFT(ctx, samples, p.NFFT, p.HopLength, func(f int, power []float64) {
		bank.Apply(power, spec.power[f*spec.NMels:(f+1)*spec.NMels])
	})
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}
	return spec, nil
}
