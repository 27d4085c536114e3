package detect

// Result is the terminal output of one pipeline run.
type Result struct {
	Segments                []Segment `json:"segments"`
	TotalDurationSeconds    float64   `json:"total_duration_seconds"`
	DetectedDurationSeconds float64   `json:"detected_duration_seconds"`
	ModelVersion            string    `json:"model_version"`
}

// Assemble packages segments. The detected duration sums the already rounded
// segment bounds so it agrees with what the segments report.
func Assemble(segments []Segment, totalSeconds float64, modelVersion string) Result {
	if segments == nil {
		segments = []Segment{}
	}
	var detected float64
	for _, s := range segments {
		detected += s.EndSeconds - s.StartSeconds
	}
	return Result{
		Segments:                segments,
		TotalDurationSeconds:    Round(totalSeconds, 2),
		DetectedDurationSeconds: Round(detected, 2),
		ModelVersion:            modelVersion,
	}
}
