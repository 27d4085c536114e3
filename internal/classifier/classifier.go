package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Backend names an execution provider.
type Backend string

const (
	BackendCPU  Backend = "cpu"
	BackendCUDA Backend = "cuda"
)

var (
	// ErrUnavailable is returned when a backend cannot be initialized or was not compiled in.
	ErrUnavailable = errors.New("classifier backend unavailable")
	// ErrShapeMismatch is returned when the model output does not line up with the batch.
	ErrShapeMismatch = errors.New("classifier output shape mismatch")
	// ErrInvalidOutput is returned for NaN or out-of-range probabilities.
	ErrInvalidOutput = errors.New("classifier returned invalid probability")
	// ErrModelNotFound is returned when the model artifact cannot be read.
	ErrModelNotFound = errors.New("model file not found")
)

// probTolerance is how far outside [0,1] a probability may drift before it is rejected.
const probTolerance = 1e-5

// Capabilities describes what the loaded backend does well.
type Capabilities struct {
	Backend            Backend
	Accelerated        bool
	PreferredBatchSize int
	// InputFrames is the model's static time width, 0 when dynamic or unknown.
	InputFrames int
}

// Batch is a contiguous (Size, 1, Mels, Frames) float32 tensor.
type Batch struct {
	Data   []float32
	Size   int
	Mels   int
	Frames int
}

// NewBatch allocates a zeroed batch.
func NewBatch(size, mels, frames int) Batch {
	return Batch{Data: make([]float32, size*mels*frames), Size: size, Mels: mels, Frames: frames}
}

// Window returns the slot for element i.
func (b Batch) Window(i int) []float32 {
	n := b.Mels * b.Frames
	return b.Data[i*n : (i+1)*n]
}

// Shape returns the 4-D tensor shape.
func (b Batch) Shape() []int64 {
	return []int64{int64(b.Size), 1, int64(b.Mels), int64(b.Frames)}
}

// Classifier maps a batch of normalized windows to one probability each, in order.
type Classifier interface {
	Capabilities() Capabilities
	Classify(ctx context.Context, batch Batch) ([]float64, error)
	Close() error
}

// CheckOutput verifies one probability per window and pulls values that sit
// within float tolerance of [0,1] back into range.
func CheckOutput(probs []float64, n int) ([]float64, error) {
	if len(probs) != n {
		return nil, fmt.Errorf("%w: got %d outputs for %d windows", ErrShapeMismatch, len(probs), n)
	}
	for i, p := range probs {
		switch {
		case math.IsNaN(p) || math.IsInf(p, 0):
			return nil, fmt.Errorf("%w: window %d is %v", ErrInvalidOutput, i, p)
		case p < -probTolerance || p > 1+probTolerance:
			return nil, fmt.Errorf("%w: window %d is %v", ErrInvalidOutput, i, p)
		case p < 0:
			probs[i] = 0
		case p > 1:
			probs[i] = 1
		}
	}
	return probs, nil
}

// Func adapts a plain function to Classifier.
type Func struct {
	Caps Capabilities
	Fn   func(ctx context.Context, batch Batch) ([]float64, error)
}

func (f Func) Capabilities() Capabilities { return f.Caps }

func (f Func) Classify(ctx context.Context, batch Batch) ([]float64, error) {
	return f.Fn(ctx, batch)
}

func (f Func) Close() error { return nil }
