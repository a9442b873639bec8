package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ytfetch/internal/domain/download"
)

// Fallback tries each backend in order until one succeeds. A failure that
// says the video itself is unavailable stops the chain.
type Fallback struct {
	backends []Backend
	logger   *slog.Logger
}

// NewFallback chains backends, most preferred first.
func NewFallback(logger *slog.Logger, backends ...Backend) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{backends: backends, logger: logger}
}

func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.backends))
	for _, b := range f.backends {
		names = append(names, b.Name())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *Fallback) FetchMetadata(ctx context.Context, url string, opts BackendOptions) (download.Metadata, error) {
	var errs []error
	for _, b := range f.backends {
		meta, err := b.FetchMetadata(ctx, url, opts)
		if err == nil {
			return meta, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if stopFallback(ctx, err) {
			break
		}
		f.logger.Warn("backend metadata failed, trying next", "backend", b.Name(), "error", err)
	}
	return download.Metadata{}, joinBackendErrors(errs)
}

func (f *Fallback) Download(ctx context.Context, url string, opts BackendOptions, dir string, onProgress func(ProgressReport)) (string, error) {
	path, _, err := f.DownloadAttributed(ctx, url, opts, dir, onProgress)
	return path, err
}

// DownloadAttributed is Download that also names the backend which succeeded.
func (f *Fallback) DownloadAttributed(ctx context.Context, url string, opts BackendOptions, dir string, onProgress func(ProgressReport)) (string, string, error) {
	var errs []error
	for i, b := range f.backends {
		if i > 0 {
			if err := resetDir(dir); err != nil {
				return "", "", err
			}
		}
		path, producer, err := downloadWith(ctx, b, url, opts, dir, onProgress)
		if err == nil {
			return path, producer, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if stopFallback(ctx, err) {
			break
		}
		f.logger.Warn("backend download failed, trying next", "backend", b.Name(), "error", err)
	}
	return "", "", joinBackendErrors(errs)
}

// ListFormats asks each backend that can enumerate streams, in order.
func (f *Fallback) ListFormats(ctx context.Context, url string) ([]download.Candidate, error) {
	var errs []error
	for _, b := range f.backends {
		lister, ok := b.(FormatLister)
		if !ok {
			continue
		}
		formats, err := lister.ListFormats(ctx, url)
		if err == nil {
			return formats, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if stopFallback(ctx, err) {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrFormatsUnsupported
	}
	return nil, errors.Join(errs...)
}

// downloadWith runs one backend and reports who produced the file.
func downloadWith(ctx context.Context, b Backend, url string, opts BackendOptions, dir string, onProgress func(ProgressReport)) (string, string, error) {
	if ad, ok := b.(AttributedDownloader); ok {
		return ad.DownloadAttributed(ctx, url, opts, dir, onProgress)
	}
	path, err := b.Download(ctx, url, opts, dir, onProgress)
	return path, b.Name(), err
}

func stopFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return download.Classify(err).Kind == download.KindUnavailable
}

func joinBackendErrors(errs []error) error {
	if len(errs) == 0 {
		return errors.New("no extraction backend configured")
	}
	return errors.Join(errs...)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reset job dir: %w", err)
	}
	return os.MkdirAll(dir, 0o755)
}
