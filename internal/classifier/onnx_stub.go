//go:build !onnx

package classifier

import "fmt"

func loadBackend(b Backend, _ Options) (Classifier, error) {
	return nil, fmt.Errorf("%w: %s (rebuild with -tags onnx)", ErrUnavailable, b)
}

func inspectModel(string, string) (ModelInfo, error) {
	return ModelInfo{}, fmt.Errorf("%w: model inspection requires -tags onnx", ErrUnavailable)
}

func initRuntime(string) error {
	return fmt.Errorf("%w: built without onnx support", ErrUnavailable)
}
