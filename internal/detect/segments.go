package detect

import (
	"math"

	"eventscan/internal/config"
)

// Prediction is the classifier's verdict for one window.
type Prediction struct {
	Start       float64 // seconds
	Probability float64
	// Span overrides the covered duration; 0 uses the window duration.
	Span float64
}

// Segment is one merged run of positive windows.
type Segment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Confidence   float64 `json:"confidence"`
	Label        string  `json:"label"`
}

// Duration returns EndSeconds - StartSeconds.
func (s Segment) Duration() float64 { return s.EndSeconds - s.StartSeconds }

// SegmentParams are the thresholds of the segment builder, in seconds.
type SegmentParams struct {
	Threshold      float64
	WindowDuration float64
	MergeGap       float64
	MinDuration    float64
	Label          string
}

// ParamsFromDetection converts millisecond options to seconds.
func ParamsFromDetection(d config.Detection) SegmentParams {
	label := d.Label
	if label == "" {
		label = config.DefaultLabel
	}
	return SegmentParams{
		Threshold:      d.ConfidenceThreshold,
		WindowDuration: d.WindowSeconds(),
		MergeGap:       d.MergeGapSeconds(),
		MinDuration:    d.MinDurationSeconds(),
		Label:          label,
	}
}

type openSegment struct {
	start, end float64
	sum        float64
	n          int
}

func (o *openSegment) absorb(end, p float64) {
	o.end = end
	o.sum += p
	o.n++
}

// BuildSegments reduces ordered predictions to merged, filtered segments in one pass.
// A positive window joins the open segment when its start is within MergeGap of
// the segment's current end. Segments shorter than MinDuration are dropped.
// The result is never nil.
func BuildSegments(preds []Prediction, p SegmentParams) []Segment {
	out := []Segment{}
	var cur *openSegment

	closeCur := func() {
		if cur == nil {
			return
		}
		if cur.end-cur.start >= p.MinDuration {
			out = append(out, Segment{
				StartSeconds: Round(cur.start, 2),
				EndSeconds:   Round(cur.end, 2),
				Confidence:   Round(cur.sum/float64(cur.n), 3),
				Label:        p.Label,
			})
		}
		cur = nil
	}

	for _, pr := range preds {
		if pr.Probability < p.Threshold {
			continue
		}
		span := p.WindowDuration
		if pr.Span > 0 {
			span = pr.Span
		}
		end := pr.Start + span
		if cur != nil && pr.Start <= cur.end+p.MergeGap {
			cur.absorb(end, pr.Probability)
			continue
		}
		closeCur()
		cur = &openSegment{start: pr.Start}
		cur.absorb(end, pr.Probability)
	}
	closeCur()
	return out
}

// Round rounds x to the given number of decimal places, halves away from zero.
func Round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
