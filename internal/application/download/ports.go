package download

import (
	"context"

	"ytfetch/internal/domain/download"
)

// ProgressReport is a raw progress sample from a backend. Either the byte
// counters or Percent may be empty.
type ProgressReport struct {
	DownloadedBytes int64
	TotalBytes      int64
	Percent         string
}

// BackendOptions are the per-job parameters handed to an extraction backend.
type BackendOptions struct {
	Format    download.FormatConstraint
	AudioOnly bool
}

// Backend is an application port for the media extraction engine.
type Backend interface {
	Name() string
	FetchMetadata(ctx context.Context, url string, opts BackendOptions) (download.Metadata, error)
	// Download writes the artifact into dir and may return its path.
	Download(ctx context.Context, url string, opts BackendOptions, dir string, onProgress func(ProgressReport)) (string, error)
}

// AttributedDownloader is implemented by backends that delegate to other
// backends. producer names the one that wrote the artifact.
type AttributedDownloader interface {
	DownloadAttributed(ctx context.Context, url string, opts BackendOptions, dir string, onProgress func(ProgressReport)) (path, producer string, err error)
}

// FormatLister is implemented by backends that can enumerate the streams of
// a video without downloading it.
type FormatLister interface {
	ListFormats(ctx context.Context, url string) ([]download.Candidate, error)
}

// JobStore is an application port for job persistence. Update applies
// mutate atomically and refuses jobs that are already terminal.
type JobStore interface {
	Create(ctx context.Context, job download.Job) error
	Get(ctx context.Context, id string) (download.Job, error)
	Update(ctx context.Context, id string, mutate func(*download.Job) error) (download.Job, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]download.Job, error)
}

// Workspace is an application port for per-job artifact directories.
type Workspace interface {
	Prepare(jobID string) (string, error)
	Locate(jobID, hint string) (string, error)
	Remove(jobID string) error
}

// ArtifactMirror copies finished artifacts to secondary storage.
type ArtifactMirror interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
}
