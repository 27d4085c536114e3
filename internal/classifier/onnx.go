//go:build onnx

package classifier

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"eventscan/internal/config"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

func initRuntime(lib string) error {
	envOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return fmt.Errorf("%w: onnxruntime: %v", ErrUnavailable, envErr)
	}
	return nil
}

// ONNX runs an exported model through ONNX Runtime.
type ONNX struct {
	session *ort.DynamicAdvancedSession
	caps    Capabilities
	mu      sync.Mutex
}

func loadBackend(b Backend, opts Options) (Classifier, error) {
	if err := initRuntime(opts.RuntimeLibrary); err != nil {
		return nil, err
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", ErrUnavailable, err)
	}
	defer so.Destroy()

	if b == BackendCUDA {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("%w: cuda options: %v", ErrUnavailable, err)
		}
		defer cuda.Destroy()
		settings := map[string]string{
			"device_id":              strconv.Itoa(opts.CUDADeviceID),
			"arena_extend_strategy":  "kNextPowerOfTwo",
			"cudnn_conv_algo_search": "EXHAUSTIVE",
		}
		if opts.GPUMemLimitMB > 0 {
			settings["gpu_mem_limit"] = strconv.FormatInt(int64(opts.GPUMemLimitMB)*1024*1024, 10)
		}
		if err := cuda.Update(settings); err != nil {
			return nil, fmt.Errorf("%w: cuda options: %v", ErrUnavailable, err)
		}
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("%w: cuda provider: %v", ErrUnavailable, err)
		}
	}

	info, err := inspectModel(opts.Path, opts.RuntimeLibrary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	inputName, outputName, err := info.ResolveNames(opts.InputName, opts.OutputName)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.Path, []string{inputName}, []string{outputName}, so)
	if err != nil {
		return nil, fmt.Errorf("%w: %s session: %v", ErrUnavailable, b, err)
	}

	caps := Capabilities{
		Backend:            b,
		Accelerated:        b == BackendCUDA,
		PreferredBatchSize: opts.BatchSize(b),
	}
	if in, ok := info.Input(inputName); ok {
		caps.InputFrames = in.StaticFrames()
	}
	return &ONNX{session: session, caps: caps}, nil
}

func (o *ONNX) Capabilities() Capabilities { return o.caps }

// Classify runs one batch and returns column 0 of the first output.
func (o *ONNX) Classify(ctx context.Context, batch Batch) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := ort.NewTensor(ort.NewShape(batch.Shape()...), batch.Data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	o.mu.Lock()
	outputs := []ort.Value{nil}
	err = o.session.Run([]ort.Value{input}, outputs)
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: output is %T, want float32 tensor", ErrShapeMismatch, outputs[0])
	}
	data := out.GetData()
	if batch.Size == 0 || len(data)%batch.Size != 0 || len(data) == 0 {
		return nil, fmt.Errorf("%w: %d values for batch of %d", ErrShapeMismatch, len(data), batch.Size)
	}
	stride := len(data) / batch.Size
	probs := make([]float64, batch.Size)
	for i := range probs {
		probs[i] = float64(data[i*stride])
	}
	return CheckOutput(probs, batch.Size)
}

func (o *ONNX) Close() error {
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}

func inspectModel(path, lib string) (ModelInfo, error) {
	if err := initRuntime(lib); err != nil {
		return ModelInfo{}, err
	}
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("read model info: %w", err)
	}
	info := ModelInfo{Path: path}
	for _, in := range ins {
		info.Inputs = append(info.Inputs, TensorInfo{Name: in.Name, Shape: []int64(in.Dimensions), Type: in.DataType.String()})
	}
	for _, out := range outs {
		info.Outputs = append(info.Outputs, TensorInfo{Name: out.Name, Shape: []int64(out.Dimensions), Type: out.DataType.String()})
	}
	return info, nil
}
