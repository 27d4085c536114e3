package worker

import (
	"encoding/json"
	"io"
	"sync"

	"eventscan/internal/config"
	"eventscan/internal/detect"
)

// Request is the single JSON document read from stdin.
type Request struct {
	InputFile string                     `json:"input_file"`
	ModelPath string                     `json:"model_path"`
	Config    *config.DetectionOverrides `json:"config,omitempty"`
}

type progressMessage struct {
	Type    string `json:"type"`
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
}

type logMessage struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type resultMessage struct {
	Type string        `json:"type"`
	Data detect.Result `json:"data"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Emitter writes protocol messages as JSON lines. Safe for concurrent use.
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEmitter writes to w.
func NewEmitter(w io.Writer) *Emitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Emitter{enc: enc}
}

func (e *Emitter) write(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// a closed stdout leaves nobody to tell
	_ = e.enc.Encode(v)
}

// Progress emits {"type":"progress"} with percent clamped to [0,100].
func (e *Emitter) Progress(percent int, stage string) {
	e.write(progressMessage{Type: "progress", Percent: min(100, max(0, percent)), Stage: stage})
}

// Log emits {"type":"log"}.
func (e *Emitter) Log(level, message string) {
	e.write(logMessage{Type: "log", Level: level, Message: message})
}

// Result emits {"type":"result"}.
func (e *Emitter) Result(r detect.Result) {
	e.write(resultMessage{Type: "result", Data: r})
}

// Error emits {"type":"error"}.
func (e *Emitter) Error(message string) {
	e.write(errorMessage{Type: "error", Message: message})
}
