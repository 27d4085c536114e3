package features

import (
	"context"
	"math"
	"math/cmplx"
	"runtime"

	"github.com/mjibson/go-dsp/fft"
	"golang.org/x/sync/errgroup"
)

// framesPerTask is how many STFT frames one goroutine handles at a time.
const framesPerTask = 256

// HannWindow returns the periodic Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// FrameCount is the number of centered STFT frames for a signal of n samples.
func FrameCount(n, hop int) int {
	return 1 + n/hop
}

// centered returns x zero-padded by pad samples on both sides.
func centered(x []float64, pad int) []float64 {
	out := make([]float64, len(x)+2*pad)
	copy(out[pad:], x)
	return out
}

// PowerFrameFunc receives the power spectrum (nfft/2+1 bins) of one frame.
// The slice is reused by the caller after fn returns.
type PowerFrameFunc func(frame int, power []float64)

// PowerSTFT computes the centered, Hann-windowed power spectrum of every frame and
// hands each one to fn. Frames are processed in parallel chunks; fn must be safe
// for concurrent calls on distinct frames.
func PowerSTFT(ctx context.Context, x []float64, nfft, hop int, fn PowerFrameFunc) error {
	padded := centered(x, nfft/2)
	frames := FrameCount(len(x), hop)
	window := HannWindow(nfft)
	bins := nfft/2 + 1

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < frames; lo += framesPerTask {
		hi := min(lo+framesPerTask, frames)
		g.Go(func() error {
			buf := make([]float64, nfft)
			power := make([]float64, bins)
			for f := lo; f < hi; f++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				off := f * hop
				for i := range buf {
					buf[i] = padded[off+i] * window[i]
				}
				spec := fft.FFTReal(buf)
				for k := 0; k < bins; k++ {
					a := cmplx.Abs(spec[k])
					power[k] = a * a
				}
				fn(f, power)
			}
			return nil
		})
	}
	return g.Wait()
}
