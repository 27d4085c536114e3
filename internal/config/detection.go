package config

import "fmt"

// DetectionOverrides is the partial option record a caller may send with a request.
// Nil fields keep the configured value.
type DetectionOverrides struct {
	WindowSizeMS         *int     `json:"window_size_ms,omitempty"`
	HopSizeMS            *int     `json:"hop_size_ms,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	MinSegmentDurationMS *int     `json:"min_segment_duration_ms,omitempty"`
	MergeGapMS           *int     `json:"merge_gap_ms,omitempty"`
}

// Merge returns d with every non-nil override applied.
func (d Detection) Merge(o *DetectionOverrides) Detection {
	if o == nil {
		return d
	}
	if o.WindowSizeMS != nil {
		d.WindowSizeMS = *o.WindowSizeMS
	}
	if o.HopSizeMS != nil {
		d.HopSizeMS = *o.HopSizeMS
	}
	if o.ConfidenceThreshold != nil {
		d.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if o.MinSegmentDurationMS != nil {
		d.MinSegmentDurationMS = *o.MinSegmentDurationMS
	}
	if o.MergeGapMS != nil {
		d.MergeGapMS = *o.MergeGapMS
	}
	return d
}

// Validate reports the first option the pipeline cannot run with.
func (d Detection) Validate() error {
	switch {
	case d.WindowSizeMS <= 0:
		return fmt.Errorf("%w: window_size_ms must be positive, got %d", ErrInvalid, d.WindowSizeMS)
	case d.HopSizeMS <= 0:
		return fmt.Errorf("%w: hop_size_ms must be positive, got %d", ErrInvalid, d.HopSizeMS)
	case d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence_threshold must be within [0,1], got %g", ErrInvalid, d.ConfidenceThreshold)
	case d.MinSegmentDurationMS < 0:
		return fmt.Errorf("%w: min_segment_duration_ms must not be negative, got %d", ErrInvalid, d.MinSegmentDurationMS)
	case d.MergeGapMS < 0:
		return fmt.Errorf("%w: merge_gap_ms must not be negative, got %d", ErrInvalid, d.MergeGapMS)
	}
	return nil
}

func (d Detection) WindowSeconds() float64      { return float64(d.WindowSizeMS) / 1000 }
func (d Detection) HopSeconds() float64         { return float64(d.HopSizeMS) / 1000 }
func (d Detection) MinDurationSeconds() float64 { return float64(d.MinSegmentDurationMS) / 1000 }
func (d Detection) MergeGapSeconds() float64    { return float64(d.MergeGapMS) / 1000 }

// WindowSamples converts the window size to a sample count at rate.
func (d Detection) WindowSamples(rate int) int { return d.WindowSizeMS * rate / 1000 }

// HopSamples converts the hop size to a sample count at rate.
func (d Detection) HopSamples(rate int) int { return d.HopSizeMS * rate / 1000 }

// Validate reports feature parameters that cannot produce a spectrogram.
func (f Features) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalid)
	case f.NMels <= 0:
		return fmt.Errorf("%w: n_mels must be positive", ErrInvalid)
	case f.NFFT <= 0 || f.NFFT&(f.NFFT-1) != 0:
		return fmt.Errorf("%w: n_fft must be a power of two, got %d", ErrInvalid, f.NFFT)
	case f.HopLength <= 0:
		return fmt.Errorf("%w: hop_length must be positive", ErrInvalid)
	case f.WindowFrames < 0:
		return fmt.Errorf("%w: window_frames must not be negative", ErrInvalid)
	case f.TopDB < 0:
		return fmt.Errorf("%w: top_db must not be negative", ErrInvalid)
	}
	return nil
}
