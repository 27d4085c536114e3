package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"eventscan/internal/audio"
	"eventscan/internal/classifier"
	"eventscan/internal/config"
	"eventscan/internal/control"
	"eventscan/internal/detect"
	"eventscan/internal/hook"
	"eventscan/internal/observe"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric/noop"
)

// ErrQueueFull is returned by Submit when the job queue has no free slot.
var ErrQueueFull = errors.New("job queue full")

type job struct {
	id        string
	input     string
	detection config.Detection
}

// Server owns the loaded classifier, the job queue and the control socket.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	clf       classifier.Classifier
	metrics   *observe.Metrics
	hook      *hook.Runner
	load      detect.LoadFunc
	startedAt time.Time

	jobsMu sync.Mutex
	jobs   []control.JobSummary

	queue  chan job
	hookCh chan hook.Job

	wg sync.WaitGroup
}

// NewServer wires a server around an already opened classifier. A nil metrics
// records nothing.
func NewServer(cfg *config.Config, logger *logrus.Logger, clf classifier.Classifier, metrics *observe.Metrics) (*Server, error) {
	if metrics == nil {
		m, err := observe.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			return nil, err
		}
		metrics = m
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		clf:       clf,
		metrics:   metrics,
		hook:      hook.NewRunner(cfg, logger),
		startedAt: time.Now(),
		jobs:      make([]control.JobSummary, 0, cfg.UI.StatusTail),
		queue:     make(chan job, max(1, cfg.Jobs.QueueSize)),
		hookCh:    make(chan hook.Job, max(1, cfg.Jobs.QueueSize)),
	}, nil
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	var (
		provider *observe.Provider
		metrics  *observe.Metrics
	)
	if cfg.Metrics.Enabled {
		p, err := observe.InitProvider()
		if err != nil {
			return fmt.Errorf("metrics provider: %w", err)
		}
		defer func() { _ = p.MeterProvider.Shutdown(context.Background()) }()
		m, err := observe.NewMetrics(p.MeterProvider)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		provider, metrics = p, m
	}

	clf, err := classifier.Open(classifier.OptionsFromConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	defer clf.Close()
	logger.Infof("Model loaded on %s", clf.Capabilities().Backend)

	srv, err := NewServer(cfg, logger, clf, metrics)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("unix", cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go srv.controlLoop(ctx, ln)
	srv.Start(ctx)

	if provider != nil {
		go srv.httpServe(ctx.Done(), cfg.Metrics.Addr, provider)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-sigCh:
		logger.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}
	_ = ln.Close()
	srv.wg.Wait()
	return nil
}

// Start launches the detection and hook workers. They stop when ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.jobWorker(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.hookWorker(ctx)
	}()
}

// Wait blocks until the workers started by Start have returned.
func (s *Server) Wait() { s.wg.Wait() }

// Submit validates and enqueues a detection job, returning its id.
func (s *Server) Submit(ctx context.Context, input string, overrides *config.DetectionOverrides) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", detect.Validation(errors.New("input_file is required"))
	}
	det := s.cfg.Detection.Merge(overrides)
	if err := det.Validate(); err != nil {
		return "", detect.Validation(err)
	}
	j := job{id: uuid.NewString(), input: input, detection: det}
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	select {
	case s.queue <- j:
	default:
		s.metrics.JobFinished(ctx, observe.JobRejected)
		return "", ErrQueueFull
	}
	s.metrics.Queued(ctx, 1)
	s.appendJob(control.JobSummary{
		ID:          j.id,
		InputFile:   input,
		State:       control.JobQueued,
		SubmittedAt: time.Now(),
	})
	s.logger.Infof("job %s queued: %s", j.id, input)
	return j.id, nil
}

// Status reports uptime, backend and the most recent jobs.
func (s *Server) Status() control.Status {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	jobs := make([]control.JobSummary, len(s.jobs))
	copy(jobs, s.jobs)
	return control.Status{
		Running:   true,
		UptimeSec: time.Since(s.startedAt).Seconds(),
		Backend:   string(s.clf.Capabilities().Backend),
		Queued:    len(s.queue),
		Jobs:      jobs,
	}
}

// appendJob records a summary, keeping the last ui.status_tail entries.
// Callers hold jobsMu.
func (s *Server) appendJob(j control.JobSummary) {
	s.jobs = append(s.jobs, j)
	if tail := s.cfg.UI.StatusTail; tail > 0 && len(s.jobs) > tail {
		s.jobs = s.jobs[len(s.jobs)-tail:]
	}
}

func (s *Server) updateJob(id string, fn func(*control.JobSummary)) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			fn(&s.jobs[i])
			return
		}
	}
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{Message: "invalid request: " + err.Error()})
		return
	}
	_ = json.NewEncoder(conn).Encode(s.handle(ctx, req))
}

func (s *Server) handle(ctx context.Context, req control.Request) any {
	switch req.Op {
	case control.OpStatus:
		return s.Status()
	case control.OpHealth:
		return control.SimpleResponse{OK: true, Message: "ok (" + string(s.clf.Capabilities().Backend) + ")"}
	case control.OpSubmit:
		id, err := s.Submit(ctx, req.InputFile, req.Config)
		if err != nil {
			return control.SimpleResponse{Message: detect.Describe(err)}
		}
		return control.SimpleResponse{OK: true, Message: "queued", JobID: id}
	default:
		return control.SimpleResponse{Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Server) jobWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.metrics.Queued(ctx, -1)
			s.runJob(ctx, j)
		}
	}
}

func (s *Server) runJob(ctx context.Context, j job) {
	s.updateJob(j.id, func(js *control.JobSummary) { js.State = control.JobRunning })
	log := s.logger.WithField("job", j.id)

	res, err := s.detect(ctx, j)
	var resultPath string
	if err == nil {
		resultPath, err = s.writeResult(j.id, res)
	}
	if err != nil {
		log.Errorf("detection failed: %s", detect.Describe(err))
		s.metrics.JobFinished(ctx, observe.JobFailed)
		s.updateJob(j.id, func(js *control.JobSummary) {
			js.State = control.JobFailed
			js.Error = detect.Describe(err)
			js.FinishedAt = time.Now()
		})
		return
	}

	s.metrics.JobFinished(ctx, observe.JobSucceeded)
	s.updateJob(j.id, func(js *control.JobSummary) {
		js.State = control.JobDone
		js.ResultPath = resultPath
		js.Segments = len(res.Segments)
		js.DetectedSeconds = res.DetectedDurationSeconds
		js.FinishedAt = time.Now()
	})
	log.Infof("Found %d segments, %.2fs detected", len(res.Segments), res.DetectedDurationSeconds)

	hj := hook.Job{ID: j.id, InputFile: j.input, ResultPath: resultPath, Result: res}
	if !s.hook.ShouldRun(hj) {
		return
	}
	select {
	case s.hookCh <- hj:
	default:
		log.Warn("hook queue full, dropping job")
	}
}

func (s *Server) detect(ctx context.Context, j job) (detect.Result, error) {
	opts, err := audio.OptionsFromConfig(s.cfg, s.logger)
	if err != nil {
		return detect.Result{}, detect.Validation(err)
	}
	progress := detect.NewProgress(func(percent int, stage string) {
		s.logger.Debugf("job %s: %d%% %s", j.id, percent, stage)
	})
	sig, err := detect.LoadSignal(ctx, s.load, j.input, opts, progress, s.logger)
	if err != nil {
		return detect.Result{}, err
	}
	p := &detect.Pipeline{
		Classifier:   s.clf,
		Features:     s.cfg.Features,
		Detection:    j.detection,
		ModelVersion: s.cfg.Model.Version,
		Logger:       s.logger,
		Recorder:     s.metrics,
	}
	return p.Run(ctx, sig, progress)
}

func (s *Server) writeResult(id string, res detect.Result) (string, error) {
	if err := os.MkdirAll(s.cfg.Paths.ResultsDir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.Paths.ResultsDir, id+".json")
	tmp := path + ".part"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
