package download

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State describes where a job is in its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// IsActive reports whether the job is queued or executing.
func (s State) IsActive() bool {
	return s == StatePending || s == StateRunning
}

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrJobFinalized      = errors.New("job already finished")
	ErrJobActive         = errors.New("job is still active")
	ErrArtifactNotReady  = errors.New("artifact not ready")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Metadata is the descriptive information reported by an extraction backend.
type Metadata struct {
	Title    string  `json:"title"`
	Uploader string  `json:"uploader,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// DurationUnknown is what FormatDuration returns when no duration was reported.
const DurationUnknown = "unknown"

// FormatDuration renders seconds as MM:SS, or HH:MM:SS for an hour or more.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return DurationUnknown
	}
	total := int(math.Round(seconds))
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// Job is the tracked record of one download request.
type Job struct {
	ID        string `json:"id"`
	SourceURL string `json:"sourceUrl"`
	VideoID   string `json:"videoId"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audioOnly"`

	State    State   `json:"state"`
	Progress float64 `json:"progress"`

	Title    string  `json:"title,omitempty"`
	Uploader string  `json:"uploader,omitempty"`
	Duration float64 `json:"duration,omitempty"`

	ErrorKind   ErrorKind `json:"errorKind,omitempty"`
	ErrorDetail string    `json:"errorDetail,omitempty"`

	ArtifactPath string `json:"artifactPath,omitempty"`
	ArtifactName string `json:"artifactName,omitempty"`
	MirrorObject string `json:"mirrorObject,omitempty"`
	Backend      string `json:"backend,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewJob builds a pending job for an accepted request.
func NewJob(id string, req Request, ref VideoRef, now time.Time) Job {
	return Job{
		ID:        id,
		SourceURL: ref.URL,
		VideoID:   ref.ID,
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
		State:     StatePending,
		CreatedAt: now,
	}
}

func isValidTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

func (j *Job) transition(to State) error {
	if !isValidTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	return nil
}

// Start moves a pending job into the running state.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(StateRunning); err != nil {
		return err
	}
	j.StartedAt = &now
	return nil
}

// SetMetadata records what the backend reported about the media.
func (j *Job) SetMetadata(meta Metadata) {
	if j.State.IsTerminal() {
		return
	}
	j.Title = meta.Title
	j.Uploader = meta.Uploader
	j.Duration = meta.Duration
}

// AdvanceProgress raises progress to value. Lower values and updates outside
// the running state are ignored; the result is clamped to [0, 100] and rounded
// to one decimal.
func (j *Job) AdvanceProgress(value float64) bool {
	if j.State != StateRunning || math.IsNaN(value) {
		return false
	}
	value = math.Round(clamp(value, 0, 100)*10) / 10
	if value <= j.Progress {
		return false
	}
	j.Progress = value
	return true
}

// Succeed finalizes the job with the produced artifact.
func (j *Job) Succeed(path, name string, now time.Time) error {
	if path == "" {
		return errors.New("artifact path is required")
	}
	if err := j.transition(StateSucceeded); err != nil {
		return err
	}
	j.Progress = 100
	j.ArtifactPath = path
	j.ArtifactName = name
	j.FinishedAt = &now
	return nil
}

// Fail finalizes the job with a classified failure.
func (j *Job) Fail(f Failure, now time.Time) error {
	if err := j.transition(StateFailed); err != nil {
		return err
	}
	j.ErrorKind = f.Kind
	j.ErrorDetail = f.Message
	if j.ErrorDetail == "" {
		j.ErrorDetail = string(f.Kind)
	}
	j.FinishedAt = &now
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
