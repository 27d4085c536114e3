package detect

import (
	"fmt"
	"sync"
)

// Fixed progress points of a full run.
const (
	PercentLoading        = 0
	PercentExtracting     = 5
	PercentLoadingModel   = 10
	PercentInferenceStart = 20
	PercentInferenceEnd   = 75
	PercentPostProcessing = 75
	PercentComplete       = 100
)

const (
	StageLoading        = "Loading audio file..."
	StageExtracting     = "Extracting audio from video..."
	StageLoadingModel   = "Loading model..."
	StagePostProcessing = "Post-processing results..."
	StageComplete       = "Complete"
)

// cpuProgressEvery is the window cadence of progress updates on unaccelerated backends.
const cpuProgressEvery = 10

// ProgressFunc receives a percentage in [0,100] and a stage description.
type ProgressFunc func(percent int, stage string)

// Progress forwards updates to fn, clamping to [0,100] and never going backwards.
// A nil fn discards updates. Safe for concurrent use.
type Progress struct {
	fn   ProgressFunc
	mu   sync.Mutex
	last int
}

// NewProgress wraps fn.
func NewProgress(fn ProgressFunc) *Progress {
	return &Progress{fn: fn, last: -1}
}

// Report sends one update.
func (p *Progress) Report(percent int, stage string) {
	if p == nil || p.fn == nil {
		return
	}
	percent = min(100, max(0, percent))
	p.mu.Lock()
	if percent < p.last {
		percent = p.last
	}
	p.last = percent
	p.mu.Unlock()
	p.fn(percent, stage)
}

// inferencePercent maps windows done to the 20..75 band.
func inferencePercent(done, total int) int {
	if total <= 0 {
		return PercentInferenceEnd
	}
	return PercentInferenceStart + done*(PercentInferenceEnd-PercentInferenceStart)/total
}

// shouldReport decides whether a batch ending at done deserves a progress update.
// Accelerated backends report every batch, others every cpuProgressEvery windows,
// and the final batch always reports.
func shouldReport(accelerated bool, prevDone, done, total int) bool {
	if done >= total || accelerated {
		return true
	}
	return done/cpuProgressEvery > prevDone/cpuProgressEvery
}

func inferenceStage(done, total int) string {
	return fmt.Sprintf("Running inference... (%d/%d windows)", done, total)
}
