package classifier

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"eventscan/internal/config"
	"eventscan/internal/logging"
)

type fakeLoader struct {
	fail  map[Backend]error
	calls []Backend
}

func (f *fakeLoader) load(b Backend, opts Options) (Classifier, error) {
	f.calls = append(f.calls, b)
	if err := f.fail[b]; err != nil {
		return nil, err
	}
	return Func{
		Caps: Capabilities{Backend: b, Accelerated: b == BackendCUDA, PreferredBatchSize: opts.BatchSize(b)},
		Fn: func(context.Context, Batch) ([]float64, error) {
			return nil, nil
		},
	}, nil
}

func testOptions(device string) Options {
	return Options{Device: device, GPUBatchSize: 32, CPUBatchSize: 1, Logger: logging.NewTestLogger()}
}

func TestNegotiateAutoPrefersCUDA(t *testing.T) {
	l := &fakeLoader{}
	c, err := Negotiate(testOptions("auto"), l.load)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	caps := c.Capabilities()
	if caps.Backend != BackendCUDA || !caps.Accelerated || caps.PreferredBatchSize != 32 {
		t.Fatalf("unexpected caps %+v", caps)
	}
	if len(l.calls) != 1 {
		t.Fatalf("expected one load, got %v", l.calls)
	}
}

func TestNegotiateAutoFallsBackOnce(t *testing.T) {
	l := &fakeLoader{fail: map[Backend]error{BackendCUDA: ErrUnavailable}}
	c, err := Negotiate(testOptions(""), l.load)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if c.Capabilities().Backend != BackendCPU || c.Capabilities().PreferredBatchSize != 1 {
		t.Fatalf("expected cpu fallback, got %+v", c.Capabilities())
	}
	if len(l.calls) != 2 || l.calls[0] != BackendCUDA || l.calls[1] != BackendCPU {
		t.Fatalf("unexpected load order %v", l.calls)
	}
}

func TestNegotiateAutoBothFail(t *testing.T) {
	cpuErr := errors.New("no cpu provider")
	l := &fakeLoader{fail: map[Backend]error{BackendCUDA: ErrUnavailable, BackendCPU: cpuErr}}
	if _, err := Negotiate(testOptions("auto"), l.load); !errors.Is(err, cpuErr) {
		t.Fatalf("expected cpu error, got %v", err)
	}
	if len(l.calls) != 2 {
		t.Fatalf("fallback should happen exactly once: %v", l.calls)
	}
}

func TestNegotiateExplicitDevices(t *testing.T) {
	l := &fakeLoader{fail: map[Backend]error{BackendCUDA: ErrUnavailable}}
	if _, err := Negotiate(testOptions("cuda"), l.load); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("cuda should fail hard, got %v", err)
	}
	if len(l.calls) != 1 {
		t.Fatalf("cuda must not fall back: %v", l.calls)
	}

	l = &fakeLoader{}
	c, err := Negotiate(testOptions("CPU"), l.load)
	if err != nil {
		t.Fatalf("cpu: %v", err)
	}
	if c.Capabilities().Backend != BackendCPU || len(l.calls) != 1 || l.calls[0] != BackendCPU {
		t.Fatalf("cpu must not try cuda: %v", l.calls)
	}

	if _, err := Negotiate(testOptions("tpu"), l.load); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown device, got %v", err)
	}
}

func TestOpenMissingModel(t *testing.T) {
	opts := testOptions("cpu")
	opts.Path = filepath.Join(t.TempDir(), "missing.onnx")
	if _, err := Open(opts); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestBatchSizeFloor(t *testing.T) {
	o := Options{GPUBatchSize: 0, CPUBatchSize: -3}
	if o.BatchSize(BackendCUDA) != 1 || o.BatchSize(BackendCPU) != 1 {
		t.Fatalf("batch sizes must be at least 1")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Model.Device = "cuda"
	cfg.Model.GPUBatchSize = 64
	o := OptionsFromConfig(cfg, nil)
	if o.Device != "cuda" || o.InputName != "mel_spectrogram" || o.BatchSize(BackendCUDA) != 64 {
		t.Fatalf("options not copied: %+v", o)
	}
}

func TestCheckOutput(t *testing.T) {
	got, err := CheckOutput([]float64{0.2, -1e-7, 1 + 1e-7}, 3)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got[1] != 0 || got[2] != 1 {
		t.Fatalf("tolerance clamp failed: %v", got)
	}
	if _, err := CheckOutput([]float64{0.1}, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := CheckOutput([]float64{math.NaN()}, 1); !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput for NaN, got %v", err)
	}
	if _, err := CheckOutput([]float64{1.5}, 1); !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput for 1.5, got %v", err)
	}
}

func TestBatchLayout(t *testing.T) {
	b := NewBatch(3, 2, 4)
	if len(b.Data) != 24 {
		t.Fatalf("data len = %d", len(b.Data))
	}
	b.Window(1)[0] = 7
	if b.Data[8] != 7 {
		t.Fatalf("window 1 should start at offset 8")
	}
	shape := b.Shape()
	if len(shape) != 4 || shape[0] != 3 || shape[1] != 1 || shape[2] != 2 || shape[3] != 4 {
		t.Fatalf("shape = %v", shape)
	}
}

func TestTensorInfo(t *testing.T) {
	in := TensorInfo{Name: "mel_spectrogram", Shape: []int64{-1, 1, 128, 32}, Type: "float32"}
	if in.StaticFrames() != 32 {
		t.Fatalf("static frames = %d", in.StaticFrames())
	}
	if in.String() != "mel_spectrogram [? x 1 x 128 x 32] float32" {
		t.Fatalf("string = %q", in.String())
	}
	dyn := TensorInfo{Shape: []int64{-1, 1, 128, -1}}
	if dyn.StaticFrames() != 0 {
		t.Fatalf("dynamic width should report 0")
	}
	info := ModelInfo{Inputs: []TensorInfo{in}}
	if _, ok := info.Input("mel_spectrogram"); !ok {
		t.Fatalf("input lookup failed")
	}
}

func TestResolveNames(t *testing.T) {
	info := ModelInfo{
		Inputs:  []TensorInfo{{Name: "mel_spectrogram", Shape: []int64{-1, 1, 128, 32}}},
		Outputs: []TensorInfo{{Name: "probability", Shape: []int64{-1, 1}}, {Name: "logits", Shape: []int64{-1, 1}}},
	}
	in, out, err := info.ResolveNames("", "")
	if err != nil || in != "mel_spectrogram" || out != "probability" {
		t.Fatalf("empty names should pick first tensors: %q %q %v", in, out, err)
	}
	if _, out, err = info.ResolveNames("mel_spectrogram", "logits"); err != nil || out != "logits" {
		t.Fatalf("explicit output: %q %v", out, err)
	}
	if _, _, err = info.ResolveNames("", "output"); !errors.Is(err, config.ErrInvalid) || !strings.Contains(err.Error(), "probability, logits") {
		t.Fatalf("unknown output should be invalid config, got %v", err)
	}
	if _, _, err = (ModelInfo{Inputs: info.Inputs}).ResolveNames("", ""); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("model without outputs should be invalid, got %v", err)
	}
}

func TestDefaultConfigBindsFirstOutput(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	info := ModelInfo{
		Inputs:  []TensorInfo{{Name: "mel_spectrogram"}},
		Outputs: []TensorInfo{{Name: "probability"}},
	}
	opts := OptionsFromConfig(cfg, nil)
	if _, out, err := info.ResolveNames(opts.InputName, opts.OutputName); err != nil || out != "probability" {
		t.Fatalf("default options should bind the exported output: %q %v", out, err)
	}
}
