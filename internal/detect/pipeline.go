package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventscan/internal/audio"
	"eventscan/internal/classifier"
	"eventscan/internal/config"
	"eventscan/internal/features"

	"github.com/sirupsen/logrus"
)

// Windows is the framer surface the pipeline consumes.
type Windows interface {
	Len() int
	Shape() (mels, frames int)
	Fill(i int, dst []float32)
	StartTime(i int) float64
}

// Recorder receives pipeline measurements. observe.Metrics implements it.
type Recorder interface {
	StageDuration(ctx context.Context, stage string, d time.Duration)
	WindowsClassified(ctx context.Context, backend string, n int)
	SegmentsDetected(ctx context.Context, n int)
}

// Pipeline runs framing, batched classification and segment building for one signal.
type Pipeline struct {
	Classifier   classifier.Classifier
	Features     config.Features
	Detection    config.Detection
	ModelVersion string
	Logger       *logrus.Logger
	Recorder     Recorder
}

// Run detects events in sig. Progress updates go to progress, which may be nil.
func (p *Pipeline) Run(ctx context.Context, sig audio.Signal, progress *Progress) (Result, error) {
	if len(sig.Samples) == 0 {
		return Result{}, Validation(ErrEmptySignal)
	}
	if err := p.Detection.Validate(); err != nil {
		return Result{}, Validation(err)
	}
	if p.Classifier == nil {
		return Result{}, Validation(errors.New("no classifier loaded"))
	}

	feat := p.Features
	if feat.WindowFrames == 0 {
		// a model with a fixed input width decides the frame count
		feat.WindowFrames = p.Classifier.Capabilities().InputFrames
	}

	start := time.Now()
	framer, err := features.NewFramer(ctx, sig, feat, p.Detection)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{}, Validation(err)
	}
	p.observeStage(ctx, "framing", start)
	l := framer.Layout()
	p.logger().WithFields(logrus.Fields{
		"windows":           l.Count,
		"frames_per_window": l.FramesPerWindow,
		"hop_samples":       l.HopSamples,
	}).Debug("framed signal")

	return p.RunWindows(ctx, framer, sig.Duration(), progress)
}

// RunWindows classifies pre-framed windows and assembles the result.
func (p *Pipeline) RunWindows(ctx context.Context, w Windows, totalSeconds float64, progress *Progress) (Result, error) {
	start := time.Now()
	preds, err := p.Classify(ctx, w, progress)
	if err != nil {
		return Result{}, err
	}
	p.observeStage(ctx, "inference", start)

	progress.Report(PercentPostProcessing, StagePostProcessing)
	start = time.Now()
	segments := BuildSegments(preds, ParamsFromDetection(p.Detection))
	result := Assemble(segments, totalSeconds, p.ModelVersion)
	p.observeStage(ctx, "postprocess", start)
	if p.Recorder != nil {
		p.Recorder.SegmentsDetected(ctx, len(segments))
	}
	p.logger().Infof("Found %d segments", len(segments))
	progress.Report(PercentComplete, StageComplete)
	return result, nil
}

// Classify runs every window through the classifier in contiguous batches and
// returns one prediction per window in window order.
func (p *Pipeline) Classify(ctx context.Context, w Windows, progress *Progress) ([]Prediction, error) {
	caps := p.Classifier.Capabilities()
	total := w.Len()
	mels, frames := w.Shape()
	ranges := Batches(total, caps.PreferredBatchSize)
	p.logger().Infof("Processing %d windows in %d batches", total, len(ranges))

	buf := classifier.NewBatch(max(1, caps.PreferredBatchSize), mels, frames)
	preds := make([]Prediction, 0, total)
	done := 0
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := classifier.Batch{
			Data:   buf.Data[:r.Len()*mels*frames],
			Size:   r.Len(),
			Mels:   mels,
			Frames: frames,
		}
		for i := r.Lo; i < r.Hi; i++ {
			w.Fill(i, batch.Window(i-r.Lo))
		}
		probs, err := p.Classifier.Classify(ctx, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, ClassifierFailure(fmt.Errorf("batch %d-%d: %w", r.Lo, r.Hi, err))
		}
		probs, err = classifier.CheckOutput(probs, r.Len())
		if err != nil {
			return nil, ClassifierFailure(fmt.Errorf("batch %d-%d: %w", r.Lo, r.Hi, err))
		}
		for i, prob := range probs {
			preds = append(preds, Prediction{Start: w.StartTime(r.Lo + i), Probability: prob})
		}
		if p.Recorder != nil {
			p.Recorder.WindowsClassified(ctx, string(caps.Backend), r.Len())
		}
		prev := done
		done = r.Hi
		if shouldReport(caps.Accelerated, prev, done, total) {
			progress.Report(inferencePercent(done, total), inferenceStage(done, total))
		}
	}
	return preds, nil
}

func (p *Pipeline) observeStage(ctx context.Context, stage string, start time.Time) {
	if p.Recorder != nil {
		p.Recorder.StageDuration(ctx, stage, time.Since(start))
	}
}

func (p *Pipeline) logger() *logrus.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}
