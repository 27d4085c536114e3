// Package mock provides a scriptable classifier for tests.
package mock

import (
	"context"
	"sync"

	"eventscan/internal/classifier"
)

// Classifier scores each window independently and records every batch it sees.
type Classifier struct {
	Caps classifier.Capabilities
	// Score returns the probability of one window. Defaults to 0.
	Score func(window []float32) float64
	// Err, when set, is returned from every Classify call.
	Err error

	mu      sync.Mutex
	batches []int
	closed  bool
}

// New returns a CPU-flavoured mock with the given batch size.
func New(batchSize int, score func([]float32) float64) *Classifier {
	return &Classifier{
		Caps:  classifier.Capabilities{Backend: classifier.BackendCPU, PreferredBatchSize: batchSize},
		Score: score,
	}
}

func (c *Classifier) Capabilities() classifier.Capabilities { return c.Caps }

func (c *Classifier) Classify(ctx context.Context, batch classifier.Batch) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.batches = append(c.batches, batch.Size)
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]float64, batch.Size)
	for i := range out {
		if c.Score != nil {
			out[i] = c.Score(batch.Window(i))
		}
	}
	return out, nil
}

func (c *Classifier) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Batches returns the size of every batch classified so far.
func (c *Classifier) Batches() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.batches...)
}

// Closed reports whether Close was called.
func (c *Classifier) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sequence hands out Probs in the order windows arrive, ignoring their content.
// Windows past the end of Probs score 0.
type Sequence struct {
	Caps  classifier.Capabilities
	Probs []float64

	mu   sync.Mutex
	next int
}

func (s *Sequence) Capabilities() classifier.Capabilities { return s.Caps }

func (s *Sequence) Classify(_ context.Context, batch classifier.Batch) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, batch.Size)
	for i := range out {
		if s.next < len(s.Probs) {
			out[i] = s.Probs[s.next]
		}
		s.next++
	}
	return out, nil
}

func (s *Sequence) Close() error { return nil }
