package classifier

import (
	"fmt"
	"strings"

	"eventscan/internal/config"
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
	Type  string  `json:"type,omitempty"`
}

// ModelInfo lists the model's declared tensors.
type ModelInfo struct {
	Path    string       `json:"path"`
	Inputs  []TensorInfo `json:"inputs"`
	Outputs []TensorInfo `json:"outputs"`
}

// Input returns the input named name.
func (m ModelInfo) Input(name string) (TensorInfo, bool) {
	for _, in := range m.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return TensorInfo{}, false
}

// ResolveNames returns the input and output tensor names to bind. An empty name
// selects the model's first declared tensor of that kind, which is how the
// exported detector is run when no names are configured.
func (m ModelInfo) ResolveNames(input, output string) (string, string, error) {
	in, err := resolve("input", input, m.Inputs)
	if err != nil {
		return "", "", err
	}
	out, err := resolve("output", output, m.Outputs)
	if err != nil {
		return "", "", err
	}
	return in, out, nil
}

func resolve(kind, name string, tensors []TensorInfo) (string, error) {
	if len(tensors) == 0 {
		return "", fmt.Errorf("%w: model declares no %ss", config.ErrInvalid, kind)
	}
	if name == "" {
		return tensors[0].Name, nil
	}
	names := make([]string, len(tensors))
	for i, t := range tensors {
		if t.Name == name {
			return name, nil
		}
		names[i] = t.Name
	}
	return "", fmt.Errorf("%w: model has no %s named %q (has %s)", config.ErrInvalid, kind, name, strings.Join(names, ", "))
}

// StaticFrames returns the fixed time width of a (B,1,mels,frames) input, 0 if dynamic.
func (t TensorInfo) StaticFrames() int {
	if len(t.Shape) != 4 || t.Shape[3] <= 0 {
		return 0
	}
	return int(t.Shape[3])
}

func (t TensorInfo) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		if d < 0 {
			dims[i] = "?"
			continue
		}
		dims[i] = fmt.Sprint(d)
	}
	s := fmt.Sprintf("%s [%s]", t.Name, strings.Join(dims, " x "))
	if t.Type != "" {
		s += " " + t.Type
	}
	return s
}

// Inspect reads tensor metadata from the model at path.
func Inspect(path, runtimeLibrary string) (ModelInfo, error) {
	return inspectModel(path, runtimeLibrary)
}

// RuntimeAvailable reports whether the inference runtime can be initialized.
func RuntimeAvailable(runtimeLibrary string) error {
	return initRuntime(runtimeLibrary)
}
