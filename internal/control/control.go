package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"eventscan/internal/config"
)

// Control socket operations.
const (
	OpStatus = "status"
	OpHealth = "health"
	OpSubmit = "submit"
)

// Job states reported in JobSummary.State.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

type Request struct {
	Op        string                     `json:"op"`
	InputFile string                     `json:"input_file,omitempty"`
	Config    *config.DetectionOverrides `json:"config,omitempty"`
}

type Status struct {
	Running   bool         `json:"running"`
	UptimeSec float64      `json:"uptime_sec"`
	Backend   string       `json:"backend"`
	Queued    int          `json:"queued"`
	Jobs      []JobSummary `json:"jobs"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

type JobSummary struct {
	ID              string    `json:"id"`
	InputFile       string    `json:"input_file"`
	State           string    `json:"state"`
	Error           string    `json:"error,omitempty"`
	ResultPath      string    `json:"result_path,omitempty"`
	Segments        int       `json:"segments"`
	DetectedSeconds float64   `json:"detected_seconds"`
	SubmittedAt     time.Time `json:"submitted_at"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
}

// Call sends req on the control socket and decodes one reply into resp.
func Call(socketPath string, req Request, resp any) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(resp)
}
