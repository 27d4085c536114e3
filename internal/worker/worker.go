package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"eventscan/internal/audio"
	"eventscan/internal/classifier"
	"eventscan/internal/config"
	"eventscan/internal/detect"
	"eventscan/internal/logging"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyRun is returned when an Invocation is run a second time.
var ErrAlreadyRun = errors.New("invocation already run")

// Invocation is one worker run: one request in, one result or error out.
// Hosts create a fresh Invocation per request.
type Invocation struct {
	Config *config.Config
	In     io.Reader
	Out    io.Writer

	// OpenClassifier and LoadAudio default to the real implementations.
	OpenClassifier func(classifier.Options) (classifier.Classifier, error)
	LoadAudio      detect.LoadFunc
	Recorder       detect.Recorder

	ran atomic.Bool
}

// NewInvocation prepares a run reading in and writing out.
func NewInvocation(cfg *config.Config, in io.Reader, out io.Writer) *Invocation {
	return &Invocation{Config: cfg, In: in, Out: out}
}

// Run executes the request. Failures are reported on Out as an error message and
// returned; the caller maps a non-nil error to exit status 1.
func (inv *Invocation) Run(ctx context.Context) error {
	if !inv.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	em := NewEmitter(inv.Out)
	level := logrus.InfoLevel
	if lvl, err := logrus.ParseLevel(strings.ToLower(inv.Config.Logging.Level)); err == nil {
		level = lvl
	}
	logger := logging.NewForwardingLogger(level, em.Log)

	res, err := inv.run(ctx, em, logger)
	if err != nil {
		em.Error(detect.Describe(err))
		return err
	}
	em.Result(res)
	return nil
}

func (inv *Invocation) run(ctx context.Context, em *Emitter, logger *logrus.Logger) (detect.Result, error) {
	req, err := ReadRequest(inv.In)
	if err != nil {
		return detect.Result{}, detect.Validation(err)
	}
	det := inv.Config.Detection.Merge(req.Config)
	if err := det.Validate(); err != nil {
		return detect.Result{}, detect.Validation(err)
	}
	modelPath := req.ModelPath
	if modelPath == "" {
		modelPath = inv.Config.Model.Path
	}

	progress := detect.NewProgress(em.Progress)
	audioOpts, err := audio.OptionsFromConfig(inv.Config, logger)
	if err != nil {
		return detect.Result{}, detect.Validation(err)
	}
	sig, err := detect.LoadSignal(ctx, inv.LoadAudio, req.InputFile, audioOpts, progress, logger)
	if err != nil {
		return detect.Result{}, err
	}

	progress.Report(detect.PercentLoadingModel, detect.StageLoadingModel)
	opts := classifier.OptionsFromConfig(inv.Config, logger)
	opts.Path = modelPath
	open := inv.OpenClassifier
	if open == nil {
		open = classifier.Open
	}
	clf, err := open(opts)
	if err != nil {
		return detect.Result{}, detect.OpenFailure(err)
	}
	defer clf.Close()
	logger.Infof("Model loaded on %s", clf.Capabilities().Backend)

	p := &detect.Pipeline{
		Classifier:   clf,
		Features:     inv.Config.Features,
		Detection:    det,
		ModelVersion: inv.Config.Model.Version,
		Logger:       logger,
		Recorder:     inv.Recorder,
	}
	return p.Run(ctx, sig, progress)
}

// ReadRequest parses the stdin document.
func ReadRequest(r io.Reader) (Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Request{}, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Request{}, errors.New("no input provided")
	}
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("invalid JSON input: %w", err)
	}
	if strings.TrimSpace(req.InputFile) == "" {
		return Request{}, errors.New("input_file is required")
	}
	return req, nil
}
