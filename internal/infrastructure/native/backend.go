package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/domain/download"

	"github.com/kkdai/youtube/v2"
)

const maxNameRunes = 120

// AudioTranscoder converts a downloaded audio stream into another container.
type AudioTranscoder interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath, format, bitrate string, onProgress func(int)) error
}

// Config holds native backend tuning.
type Config struct {
	UserAgent    string
	AudioFormat  string
	AudioQuality string
}

// Backend talks to YouTube directly through kkdai/youtube. It only sees
// progressive (audio+video) and audio-only streams, so high resolutions fall
// back along the format chain.
type Backend struct {
	client     *youtube.Client
	cfg        Config
	transcoder AudioTranscoder
	logger     *slog.Logger
}

// New creates the native extraction backend. transcoder may be nil, in which
// case audio is kept in its original container.
func New(cfg Config, transcoder AudioTranscoder, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{
		Transport: &userAgentTransport{base: http.DefaultTransport, userAgent: cfg.UserAgent},
	}
	return &Backend{
		client:     &youtube.Client{HTTPClient: httpClient},
		cfg:        cfg,
		transcoder: transcoder,
		logger:     logger,
	}
}

func (b *Backend) Name() string { return "native" }

func (b *Backend) FetchMetadata(ctx context.Context, url string, _ appdownload.BackendOptions) (download.Metadata, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return download.Metadata{}, describeError(err)
	}
	return download.Metadata{
		Title:    video.Title,
		Uploader: video.Author,
		Duration: video.Duration.Seconds(),
	}, nil
}

func (b *Backend) Download(ctx context.Context, url string, opts appdownload.BackendOptions, dir string, onProgress func(appdownload.ProgressReport)) (string, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return "", describeError(err)
	}

	chosen, clause, ok := opts.Format.Select(toCandidates(video.Formats))
	if !ok {
		return "", errors.New("no downloadable format matches " + opts.Format.String())
	}
	index, _ := strconv.Atoi(chosen.ID)
	format := &video.Formats[index]
	b.logger.Debug("native format selected", "itag", format.ItagNo, "mime", format.MimeType, "clause", clause)

	stream, size, err := b.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", describeError(err)
	}
	defer stream.Close()

	base := SanitizeFileName(video.Title)
	target := filepath.Join(dir, base+"."+chosen.Ext)
	if err := writeStream(ctx, target, stream, size, onProgress); err != nil {
		return "", err
	}

	if !opts.AudioOnly || b.transcoder == nil || b.cfg.AudioFormat == "" || strings.EqualFold(b.cfg.AudioFormat, chosen.Ext) {
		return target, nil
	}

	converted := filepath.Join(dir, base+"."+strings.ToLower(b.cfg.AudioFormat))
	if err := b.transcoder.ExtractAudio(ctx, target, converted, b.cfg.AudioFormat, b.cfg.AudioQuality, nil); err != nil {
		return "", fmt.Errorf("audio conversion: %w", err)
	}
	_ = os.Remove(target)
	return converted, nil
}

// ListFormats reports every stream YouTube offers for the video, keyed by itag.
func (b *Backend) ListFormats(ctx context.Context, url string) ([]download.Candidate, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, describeError(err)
	}
	return itagCandidates(video.Formats), nil
}

func itagCandidates(formats youtube.FormatList) []download.Candidate {
	out := toCandidates(formats)
	for i := range out {
		out[i].ID = strconv.Itoa(formats[i].ItagNo)
	}
	return out
}

func writeStream(ctx context.Context, target string, stream io.Reader, size int64, onProgress func(appdownload.ProgressReport)) error {
	partPath := target + ".part"
	file, err := os.Create(partPath)
	if err != nil {
		return err
	}

	writer := &progressWriter{total: size, onProgress: onProgress}
	_, copyErr := io.Copy(io.MultiWriter(file, writer), &contextReader{ctx: ctx, r: stream})
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(partPath)
		return fmt.Errorf("stream copy: %w", describeError(copyErr))
	}
	if closeErr != nil {
		_ = os.Remove(partPath)
		return closeErr
	}
	return os.Rename(partPath, target)
}

func toCandidates(formats youtube.FormatList) []download.Candidate {
	out := make([]download.Candidate, 0, len(formats))
	for i, f := range formats {
		bitrate := f.Bitrate
		if bitrate == 0 {
			bitrate = f.AverageBitrate
		}
		out = append(out, download.Candidate{
			ID:       strconv.Itoa(i),
			Ext:      mimeExt(f.MimeType),
			Height:   f.Height,
			Bitrate:  bitrate,
			HasVideo: strings.HasPrefix(f.MimeType, "video/"),
			HasAudio: f.AudioChannels > 0,
		})
	}
	return out
}

func mimeExt(mimeType string) string {
	kind, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(kind)) {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	default:
		return "bin"
	}
}

// SanitizeFileName turns a video title into a portable file name.
func SanitizeFileName(title string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(title) {
		if count >= maxNameRunes {
			break
		}
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
		count++
	}
	name := strings.Trim(b.String(), " .")
	if name == "" {
		return "video"
	}
	return name
}

func describeError(err error) error {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return fmt.Errorf("video unavailable: %w", err)
	case strings.Contains(err.Error(), "status code: 429"):
		return fmt.Errorf("HTTP Error 429: %w", err)
	}
	return err
}

type progressWriter struct {
	total      int64
	written    int64
	onProgress func(appdownload.ProgressReport)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.onProgress != nil {
		p.onProgress(appdownload.ProgressReport{DownloadedBytes: p.written, TotalBytes: p.total})
	}
	return len(b), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
