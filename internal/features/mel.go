package features

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
	melMinLog   = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLog + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz inverts HzToMel.
func MelToHz(mel float64) float64 {
	if mel >= melMinLog {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLog))
	}
	return melFSp * mel
}

// melFilter is one triangular filter stored over its non-zero bin range.
type melFilter struct {
	lo      int
	weights []float64
}

// MelBank is an area-normalized triangular filterbank from 0 Hz to Nyquist.
type MelBank struct {
	bins    int
	filters []melFilter
}

// NewMelBank builds nMels filters over the nfft/2+1 bins of a real FFT at rate.
func NewMelBank(rate, nfft, nMels int) *MelBank {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(rate) / float64(nfft)
	}

	lo, hi := HzToMel(0), HzToMel(float64(rate)/2)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = MelToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	bank := &MelBank{bins: bins, filters: make([]melFilter, nMels)}
	for m := 0; m < nMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		enorm := 2 / (right - left)
		first, last := -1, -1
		row := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			w := math.Max(0, math.Min(lower, upper)) * enorm
			if w > 0 {
				if first < 0 {
					first = k
				}
				last = k
			}
			row[k] = w
		}
		if first < 0 {
			// filter narrower than one bin
			bank.filters[m] = melFilter{}
			continue
		}
		bank.filters[m] = melFilter{lo: first, weights: row[first : last+1]}
	}
	return bank
}

// Size returns the number of filters.
func (b *MelBank) Size() int { return len(b.filters) }

// Weight returns the filter m weight at FFT bin k.
func (b *MelBank) Weight(m, k int) float64 {
	f := b.filters[m]
	if k < f.lo || k >= f.lo+len(f.weights) {
		return 0
	}
	return f.weights[k-f.lo]
}

// Apply projects a power spectrum onto the bank, writing one value per filter into dst.
func (b *MelBank) Apply(power []float64, dst []float32) {
	for m, f := range b.filters {
		var sum float64
		for i, w := range f.weights {
			sum += w * power[f.lo+i]
		}
		dst[m] = float32(sum)
	}
}
