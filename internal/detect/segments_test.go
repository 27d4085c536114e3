package detect

import (
	"math"
	"math/rand"
	"testing"

	"eventscan/internal/config"
)

func params(gap, minDur float64) SegmentParams {
	return SegmentParams{
		Threshold:      0.7,
		WindowDuration: 1.0,
		MergeGap:       gap,
		MinDuration:    minDur,
		Label:          config.DefaultLabel,
	}
}

func TestGapBoundary(t *testing.T) {
	merged := BuildSegments([]Prediction{{Start: 0, Probability: 0.9}, {Start: 1.29, Probability: 0.8}}, params(0.3, 0.5))
	if len(merged) != 1 {
		t.Fatalf("1.29s should merge, got %+v", merged)
	}
	if merged[0].StartSeconds != 0 || merged[0].EndSeconds != 2.29 {
		t.Fatalf("merged bounds %+v", merged[0])
	}
	if merged[0].Confidence != 0.85 {
		t.Fatalf("confidence = %v", merged[0].Confidence)
	}

	split := BuildSegments([]Prediction{{Start: 0, Probability: 0.9}, {Start: 1.31, Probability: 0.8}}, params(0.3, 0.5))
	if len(split) != 2 {
		t.Fatalf("1.31s should not merge, got %+v", split)
	}
}

func TestGapMeasuredFromSegmentEnd(t *testing.T) {
	// Window starts are 1.2s apart, well beyond the 0.3s gap, yet each start lies
	// within 0.3s of the open segment's end, so the whole run is one segment.
	preds := []Prediction{
		{Start: 0, Probability: 0.9},
		{Start: 1.2, Probability: 0.9},
		{Start: 2.4, Probability: 0.9},
		{Start: 3.6, Probability: 0.9},
	}
	segs := BuildSegments(preds, params(0.3, 0.5))
	if len(segs) != 1 {
		t.Fatalf("expected one transitive segment, got %+v", segs)
	}
	if segs[0].StartSeconds != 0 || segs[0].EndSeconds != 4.6 {
		t.Fatalf("bounds %+v", segs[0])
	}

	// Measuring from the previous window's start would split every window.
	prevStart := 0
	for i := 1; i < len(preds); i++ {
		if preds[i].Start-preds[i-1].Start > 0.3 {
			prevStart++
		}
	}
	if prevStart+1 == len(segs) {
		t.Fatalf("fixture does not distinguish the two gap rules")
	}
}

func TestOverlappingWindowsMerge(t *testing.T) {
	var preds []Prediction
	for i := 0; i < 8; i++ {
		preds = append(preds, Prediction{Start: float64(i) * 0.25, Probability: 0.75 + float64(i)*0.01})
	}
	segs := BuildSegments(preds, params(0.3, 0.5))
	if len(segs) != 1 {
		t.Fatalf("overlapping windows should merge: %+v", segs)
	}
	if segs[0].EndSeconds != 2.75 {
		t.Fatalf("end = %v", segs[0].EndSeconds)
	}
	if segs[0].Confidence != 0.785 {
		t.Fatalf("confidence = %v", segs[0].Confidence)
	}
}

func TestMinDurationDropsIsolatedWindow(t *testing.T) {
	p := params(0.3, 0.5)
	p.WindowDuration = 0.4
	segs := BuildSegments([]Prediction{{Start: 3, Probability: 0.99}}, p)
	if len(segs) != 0 {
		t.Fatalf("short isolated window should be dropped: %+v", segs)
	}
	segs = BuildSegments([]Prediction{{Start: 3, Probability: 0.99}, {Start: 3.2, Probability: 0.99}}, p)
	if len(segs) != 1 || segs[0].Duration() < 0.5 {
		t.Fatalf("merged pair should survive: %+v", segs)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	segs := BuildSegments([]Prediction{{Start: 0, Probability: 0.7}}, params(0.3, 0.5))
	if len(segs) != 1 {
		t.Fatalf("probability equal to threshold is positive")
	}
	segs = BuildSegments([]Prediction{{Start: 0, Probability: 0.6999}}, params(0.3, 0.5))
	if len(segs) != 0 {
		t.Fatalf("probability below threshold is negative")
	}
}

func TestEmptyAndAllNegative(t *testing.T) {
	if segs := BuildSegments(nil, params(0.3, 0.5)); segs == nil || len(segs) != 0 {
		t.Fatalf("nil input should give an empty, non-nil list: %#v", segs)
	}
	preds := []Prediction{{Start: 0, Probability: 0.1}, {Start: 0.25, Probability: 0.69}}
	if segs := BuildSegments(preds, params(0.3, 0.5)); len(segs) != 0 {
		t.Fatalf("all-negative should give no segments: %+v", segs)
	}
}

func TestRoundingOfOutput(t *testing.T) {
	preds := []Prediction{{Start: 1.234567, Probability: 0.81234}, {Start: 1.5, Probability: 0.9}}
	segs := BuildSegments(preds, params(0.3, 0.5))
	if len(segs) != 1 {
		t.Fatalf("segments %+v", segs)
	}
	s := segs[0]
	if s.StartSeconds != 1.23 || s.EndSeconds != 2.5 || s.Confidence != 0.856 || s.Label != "target_event" {
		t.Fatalf("rounded segment %+v", s)
	}
}

func TestSegmentsOrderedAndSeparated(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	preds := randomPredictions(rng, 400)
	p := params(0.3, 0.5)
	segs := BuildSegments(preds, p)
	for i := 1; i < len(segs); i++ {
		if segs[i].StartSeconds < segs[i-1].StartSeconds {
			t.Fatalf("segments out of order at %d", i)
		}
		if segs[i-1].EndSeconds+p.MergeGap > segs[i].StartSeconds+0.01 {
			t.Fatalf("segments %d and %d closer than the merge gap: %+v %+v", i-1, i, segs[i-1], segs[i])
		}
	}
}

func TestIdempotentOnMegaWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := params(0.3, 0.5)
	first := BuildSegments(randomPredictions(rng, 500), p)
	if len(first) < 3 {
		t.Fatalf("fixture too sparse: %d segments", len(first))
	}

	mega := make([]Prediction, len(first))
	for i, s := range first {
		mega[i] = Prediction{Start: s.StartSeconds, Probability: 1.0, Span: s.EndSeconds - s.StartSeconds}
	}
	p.MergeGap = 0
	second := BuildSegments(mega, p)
	if len(second) != len(first) {
		t.Fatalf("segment count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].StartSeconds != second[i].StartSeconds || first[i].EndSeconds != second[i].EndSeconds {
			t.Fatalf("segment %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestThresholdMonotonicDuration(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	preds := randomPredictions(rng, 600)
	prev := math.Inf(1)
	for _, thr := range []float64{0, 0.2, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1} {
		p := params(0.3, 0.5)
		p.Threshold = thr
		res := Assemble(BuildSegments(preds, p), 150, "v")
		if res.DetectedDurationSeconds > prev+1e-9 {
			t.Fatalf("threshold %v increased detected duration: %v > %v", thr, res.DetectedDurationSeconds, prev)
		}
		prev = res.DetectedDurationSeconds
	}
}

func TestThresholdMonotonicCountWithoutSplits(t *testing.T) {
	// Runs separated by long negative stretches never split when the threshold
	// rises, so the count can only shrink.
	var preds []Prediction
	for run := 0; run < 6; run++ {
		base := float64(run) * 10
		prob := 0.65 + float64(run)*0.05
		for i := 0; i < 6; i++ {
			preds = append(preds, Prediction{Start: base + float64(i)*0.25, Probability: prob})
		}
	}
	prev := math.MaxInt
	for _, thr := range []float64{0.5, 0.66, 0.71, 0.76, 0.81, 0.86, 0.91} {
		p := params(0.3, 0.5)
		p.Threshold = thr
		n := len(BuildSegments(preds, p))
		if n > prev {
			t.Fatalf("threshold %v increased segment count %d > %d", thr, n, prev)
		}
		prev = n
	}
}

func TestRaisingThresholdCanSplitSegment(t *testing.T) {
	preds := []Prediction{{Start: 0, Probability: 0.9}, {Start: 1.0, Probability: 0.75}, {Start: 2.0, Probability: 0.9}}
	p := params(0, 0.5)
	if n := len(BuildSegments(preds, p)); n != 1 {
		t.Fatalf("expected one segment at 0.7, got %d", n)
	}
	p.Threshold = 0.8
	segs := BuildSegments(preds, p)
	if len(segs) != 2 {
		t.Fatalf("expected split into two at 0.8, got %+v", segs)
	}
	if total := Assemble(segs, 3, "").DetectedDurationSeconds; total != 2 {
		t.Fatalf("split duration = %v", total)
	}
}

func TestParamsFromDetection(t *testing.T) {
	d := config.DefaultDetection()
	d.Label = ""
	p := ParamsFromDetection(d)
	if p.WindowDuration != 1 || p.MergeGap != 0.3 || p.MinDuration != 0.5 || p.Threshold != 0.7 {
		t.Fatalf("params %+v", p)
	}
	if p.Label != "target_event" {
		t.Fatalf("label should default, got %q", p.Label)
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		x      float64
		places int
		want   float64
	}{
		{1.005001, 2, 1.01},
		{2.344, 2, 2.34},
		{0.8567, 3, 0.857},
		{-1.25, 1, -1.3},
	}
	for _, c := range cases {
		if got := Round(c.x, c.places); got != c.want {
			t.Fatalf("Round(%v,%d) = %v want %v", c.x, c.places, got, c.want)
		}
	}
}

// randomPredictions produces runs of positives and negatives on a 0.25s hop.
func randomPredictions(rng *rand.Rand, n int) []Prediction {
	out := make([]Prediction, n)
	positive := false
	for i := range out {
		if rng.Float64() < 0.08 {
			positive = !positive
		}
		prob := rng.Float64() * 0.6
		if positive {
			prob = 0.6 + rng.Float64()*0.4
		}
		out[i] = Prediction{Start: float64(i) * 0.25, Probability: prob}
	}
	return out
}

func TestAssembleRoundsTotalDuration(t *testing.T) {
	res := Assemble(nil, float64(2880001)/16000, "v")
	if res.TotalDurationSeconds != 180 {
		t.Fatalf("total = %v", res.TotalDurationSeconds)
	}
	if res := Assemble(nil, 12.3456, "v"); res.TotalDurationSeconds != 12.35 {
		t.Fatalf("total = %v", res.TotalDurationSeconds)
	}
}
