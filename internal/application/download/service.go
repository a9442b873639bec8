package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ytfetch/internal/domain/download"

	"github.com/google/uuid"
)

const (
	defaultMaxConcurrent   = 4
	defaultWaitInterval    = time.Second
	defaultJanitorInterval = 5 * time.Minute
	finalWriteTimeout      = 10 * time.Second
)

var (
	// ErrClosed is returned by Submit once shutdown has begun.
	ErrClosed = errors.New("download service is shutting down")
	// ErrFormatsUnsupported means the configured backend cannot list streams.
	ErrFormatsUnsupported = errors.New("backend cannot list formats")
)

// Options tune the orchestrator. Zero values select defaults.
type Options struct {
	MaxConcurrent int
	DelayMin      time.Duration
	DelayMax      time.Duration
	Mirror        ArtifactMirror
	Logger        *slog.Logger
	NewID         func() string
	Now           func() time.Time
}

// Artifact describes a finished download on local disk. MirrorObject is the
// key of the backup copy in object storage, if one was made.
type Artifact struct {
	Path         string
	Name         string
	Size         int64
	ModTime      time.Time
	MirrorObject string
}

// Info is what Inspect learns about a video without downloading it.
type Info struct {
	Metadata download.Metadata
	Formats  []download.Candidate
}

// Service orchestrates asynchronous download jobs.
type Service struct {
	store     JobStore
	backend   Backend
	workspace Workspace
	mirror    ArtifactMirror
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	delayMin time.Duration
	delayMax time.Duration

	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	janitorOnce sync.Once
}

// NewService creates a download use-case service with injected ports.
func NewService(store JobStore, backend Backend, workspace Workspace, opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     store,
		backend:   backend,
		workspace: workspace,
		mirror:    opts.Mirror,
		logger:    opts.Logger,
		newID:     opts.NewID,
		now:       opts.Now,
		delayMin:  opts.DelayMin,
		delayMax:  opts.DelayMax,
		slots:     make(chan struct{}, opts.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit validates the request, records a pending job and starts it in the
// background. It returns without doing any network I/O.
func (s *Service) Submit(ctx context.Context, req download.Request) (string, error) {
	ref, err := download.ValidateURL(req.URL)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	id := s.newID()
	job := download.NewJob(id, req, ref, s.now())
	if err := s.store.Create(ctx, job); err != nil {
		s.wg.Done()
		return "", fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job submitted",
		"job_id", id,
		"video_id", ref.ID,
		"quality", req.Quality,
		"audio_only", req.AudioOnly,
	)

	go s.execute(id, req, ref)
	return id, nil
}

// Inspect fetches metadata and, when the backend supports it, the list of
// available streams.
func (s *Service) Inspect(ctx context.Context, rawURL string) (Info, error) {
	ref, err := download.ValidateURL(rawURL)
	if err != nil {
		return Info{}, err
	}
	meta, err := s.backend.FetchMetadata(ctx, ref.Canonical, BackendOptions{Format: download.SelectFormat("best", false)})
	if err != nil {
		return Info{}, err
	}
	info := Info{Metadata: meta}

	lister, ok := s.backend.(FormatLister)
	if !ok {
		return info, nil
	}
	formats, err := lister.ListFormats(ctx, ref.Canonical)
	if err != nil {
		if errors.Is(err, ErrFormatsUnsupported) {
			return info, nil
		}
		return info, fmt.Errorf("list formats: %w", err)
	}
	info.Formats = formats
	return info, nil
}

// Status returns the current snapshot of a job.
func (s *Service) Status(ctx context.Context, id string) (download.Job, error) {
	return s.store.Get(ctx, id)
}

// Artifact returns the produced file of a succeeded job.
func (s *Service) Artifact(ctx context.Context, id string) (Artifact, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	if job.State != download.StateSucceeded {
		return Artifact{}, download.ErrArtifactNotReady
	}

	info, err := os.Stat(job.ArtifactPath)
	if err != nil || info.IsDir() {
		return Artifact{}, fmt.Errorf("%w: file is no longer available", download.ErrArtifactNotReady)
	}

	name := job.ArtifactName
	if name == "" {
		name = info.Name()
	}
	return Artifact{
		Path:         job.ArtifactPath,
		Name:         name,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		MirrorObject: job.MirrorObject,
	}, nil
}

// List returns all known jobs, newest first.
func (s *Service) List(ctx context.Context) ([]download.Job, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Delete removes a finished job together with its files.
func (s *Service) Delete(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State.IsActive() {
		return download.ErrJobActive
	}
	if err := s.workspace.Remove(id); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return s.store.Delete(ctx, id)
}

// Wait polls a job until it reaches a terminal state. onUpdate, when set,
// receives every snapshot observed along the way.
func (s *Service) Wait(ctx context.Context, id string, every time.Duration, onUpdate func(download.Job)) (download.Job, error) {
	if every <= 0 {
		every = defaultWaitInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		job, err := s.store.Get(ctx, id)
		if err != nil {
			return download.Job{}, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.State.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops accepting jobs and waits for running ones. When ctx expires
// first, in-flight backend calls are cancelled.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// StartJanitor periodically deletes finished jobs older than retention.
func (s *Service) StartJanitor(ctx context.Context, interval, retention time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = defaultJanitorInterval
	}

	s.janitorOnce.Do(func() {
		s.logger.Info("job janitor enabled", "interval", interval, "retention", retention)
		go s.runJanitor(ctx, interval, retention)
	})
}

func (s *Service) runJanitor(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, retention)
		}
	}
}

func (s *Service) sweep(ctx context.Context, retention time.Duration) int {
	jobs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("janitor scan failed", "error", err)
		return 0
	}

	cutoff := s.now().Add(-retention)
	removed := 0
	for _, job := range jobs {
		if !job.State.IsTerminal() || job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		if err := s.Delete(ctx, job.ID); err != nil && !errors.Is(err, download.ErrJobNotFound) {
			s.logger.Warn("janitor delete failed", "job_id", job.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("janitor removed expired jobs", "count", removed)
	}
	return removed
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func (s *Service) execute(id string, req download.Request, ref download.VideoRef) {
	defer s.wg.Done()
	logger := s.logger.With("job_id", id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			s.fail(id, download.Failure{Kind: download.KindUnknown, Message: fmt.Sprintf("internal error: %v", r)}, logger)
		}
	}()

	select {
	case s.slots <- struct{}{}:
	case <-s.ctx.Done():
		s.fail(id, download.Failure{Kind: download.KindUnknown, Message: "service stopped before the job started"}, logger)
		return
	}
	defer func() { <-s.slots }()

	if _, err := s.store.Update(s.ctx, id, func(j *download.Job) error { return j.Start(s.now()) }); err != nil {
		logger.Error("job start failed", "error", err)
		s.fail(id, download.Failure{Kind: download.KindUnknown, Message: "could not start job", Raw: err.Error()}, logger)
		return
	}
	logger.Info("job running")

	out, err := s.run(s.ctx, id, req, ref, logger)
	if err != nil {
		failure := download.Classify(err)
		var se *stageError
		if errors.As(err, &se) {
			failure = download.Classify(se.err)
			logger = logger.With("stage", se.stage)
		}
		s.fail(id, failure, logger)
		return
	}

	s.finish(id, func(j *download.Job) error {
		j.MirrorObject = out.mirrorObject
		j.Backend = out.backend
		return j.Succeed(out.path, filepath.Base(out.path), s.now())
	}, logger)
	logger.Info("job succeeded", "artifact", filepath.Base(out.path), "backend", out.backend)
}

type outcome struct {
	path         string
	backend      string
	mirrorObject string
}

func (s *Service) run(ctx context.Context, id string, req download.Request, ref download.VideoRef, logger *slog.Logger) (outcome, error) {
	opts := BackendOptions{
		Format:    download.SelectFormat(req.Quality, req.AudioOnly),
		AudioOnly: req.AudioOnly,
	}

	if err := s.pause(ctx); err != nil {
		return outcome{}, &stageError{stage: "delay", err: err}
	}

	meta, err := s.backend.FetchMetadata(ctx, ref.Canonical, opts)
	if err != nil {
		return outcome{}, &stageError{stage: "metadata", err: err}
	}
	if _, err := s.store.Update(ctx, id, func(j *download.Job) error {
		j.SetMetadata(meta)
		return nil
	}); err != nil {
		logger.Warn("metadata update failed", "error", err)
	}
	logger.Info("metadata fetched", "title", meta.Title, "format", opts.Format.String())

	dir, err := s.workspace.Prepare(id)
	if err != nil {
		return outcome{}, &stageError{stage: "workspace", err: err}
	}

	reported, producer, err := downloadWith(ctx, s.backend, ref.Canonical, opts, dir, s.progressFunc(ctx, id, logger))
	if err != nil {
		return outcome{}, &stageError{stage: "download", err: err}
	}

	path, err := s.workspace.Locate(id, reported)
	if err != nil {
		logger.Warn("artifact not found", "dir", dir, "reported", reported, "error", err)
		return outcome{}, download.MissingOutput()
	}

	out := outcome{path: path, backend: producer}
	if s.mirror != nil {
		object, err := s.mirror.Publish(ctx, id, path)
		if err != nil {
			logger.Warn("artifact mirror failed", "error", err)
		} else {
			out.mirrorObject = object
		}
	}
	return out, nil
}

func (s *Service) progressFunc(ctx context.Context, id string, logger *slog.Logger) func(ProgressReport) {
	var mu sync.Mutex
	last := -1.0

	return func(report ProgressReport) {
		value, ok := progressValue(report)
		if !ok {
			return
		}
		value = math.Round(value*10) / 10

		mu.Lock()
		defer mu.Unlock()
		if value <= last {
			return
		}
		last = value

		if _, err := s.store.Update(ctx, id, func(j *download.Job) error {
			j.AdvanceProgress(value)
			return nil
		}); err != nil {
			logger.Debug("progress update dropped", "error", err)
		}
	}
}

func progressValue(report ProgressReport) (float64, bool) {
	if report.TotalBytes > 0 {
		return float64(report.DownloadedBytes) / float64(report.TotalBytes) * 100, true
	}
	return parsePercent(report.Percent)
}

func parsePercent(raw string) (float64, bool) {
	value := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (s *Service) pause(ctx context.Context) error {
	delay := s.delayMin
	if span := s.delayMax - s.delayMin; span > 0 {
		delay += rand.N(span + 1)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) fail(id string, failure download.Failure, logger *slog.Logger) {
	s.finish(id, func(j *download.Job) error {
		return j.Fail(failure, s.now())
	}, logger)
	logger.Warn("job failed", "error_kind", failure.Kind, "error", failure.Raw)
}

// finish writes a terminal state even when the service context is already
// cancelled.
func (s *Service) finish(id string, mutate func(*download.Job) error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), finalWriteTimeout)
	defer cancel()
	if _, err := s.store.Update(ctx, id, mutate); err != nil {
		logger.Error("final job update failed", "error", err)
	}
}
