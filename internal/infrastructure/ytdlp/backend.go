package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/domain/download"

	goytdlp "github.com/lrstanley/go-ytdlp"
)

const (
	progressInterval = 500 * time.Millisecond
	maxStderrBytes   = 4096
)

// Config holds yt-dlp tuning knobs. They are passed through as command-line
// flags and do not change the backend contract.
type Config struct {
	Executable          string
	OutputTemplate      string
	NetworkRetries      int
	FragmentRetries     int
	ExtractorRetries    int
	SleepInterval       time.Duration
	MaxSleepInterval    time.Duration
	SleepRequests       time.Duration
	ConcurrentFragments int
	UserAgent           string
	PlayerClients       string
	AudioFormat         string
	AudioQuality        string
}

// DefaultConfig mirrors the settings that work best against YouTube today.
func DefaultConfig() Config {
	return Config{
		OutputTemplate:      "%(title)s.%(ext)s",
		NetworkRetries:      10,
		FragmentRetries:     3,
		ExtractorRetries:    3,
		SleepInterval:       time.Second,
		MaxSleepInterval:    5 * time.Second,
		SleepRequests:       500 * time.Millisecond,
		ConcurrentFragments: 4,
		PlayerClients:       "android,web",
		AudioFormat:         "mp3",
		AudioQuality:        "192K",
	}
}

// Backend runs the yt-dlp executable through go-ytdlp.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

// New creates the yt-dlp extraction backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutputTemplate == "" {
		cfg.OutputTemplate = DefaultConfig().OutputTemplate
	}
	return &Backend{cfg: cfg, logger: logger}
}

// EnsureInstalled downloads a yt-dlp release when none is available.
func EnsureInstalled(ctx context.Context) error {
	if _, err := goytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

func (b *Backend) Name() string { return "ytdlp" }

func (b *Backend) FetchMetadata(ctx context.Context, url string, opts appdownload.BackendOptions) (download.Metadata, error) {
	cmd := b.base().
		Format(opts.Format.String()).
		SkipDownload().
		PrintJSON().
		NoProgress()

	result, err := cmd.Run(ctx, url)
	if err != nil {
		return download.Metadata{}, runError(err, result)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return download.Metadata{}, fmt.Errorf("failed to extract metadata: %w", err)
	}
	if len(infos) == 0 {
		return download.Metadata{}, errors.New("failed to extract any player response")
	}
	return metadataFromInfo(infos[0]), nil
}

func (b *Backend) Download(ctx context.Context, url string, opts appdownload.BackendOptions, dir string, onProgress func(appdownload.ProgressReport)) (string, error) {
	cmd := b.downloadCommand(opts, dir)
	if onProgress != nil {
		cmd.ProgressFunc(progressInterval, func(update goytdlp.ProgressUpdate) {
			onProgress(reportFromUpdate(update))
		})
	}

	result, err := cmd.Run(ctx, url)
	if err != nil {
		return "", runError(err, result)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		b.logger.Debug("yt-dlp returned no info json", "error", err)
		return "", nil
	}
	return reportedPath(infos[0], dir, opts.AudioOnly, b.cfg.AudioFormat), nil
}

// ListFormats asks yt-dlp for the info json without downloading and reports
// the streams it lists.
func (b *Backend) ListFormats(ctx context.Context, url string) ([]download.Candidate, error) {
	result, err := b.base().SkipDownload().PrintJSON().NoProgress().Run(ctx, url)
	if err != nil {
		return nil, runError(err, result)
	}
	return parseFormats(result.Stdout)
}

type formatEntry struct {
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	Height   *int     `json:"height"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
	TBR      *float64 `json:"tbr"`
}

// parseFormats reads the formats array of the first info json line in stdout.
func parseFormats(stdout string) ([]download.Candidate, error) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info struct {
			Formats []formatEntry `json:"formats"`
		}
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return nil, fmt.Errorf("decode format list: %w", err)
		}
		out := make([]download.Candidate, 0, len(info.Formats))
		for _, f := range info.Formats {
			c := download.Candidate{
				ID:       f.FormatID,
				Ext:      f.Ext,
				HasVideo: f.VCodec != "" && f.VCodec != "none",
				HasAudio: f.ACodec != "" && f.ACodec != "none",
			}
			if f.Height != nil {
				c.Height = *f.Height
			}
			if f.TBR != nil {
				c.Bitrate = int(*f.TBR)
			}
			out = append(out, c)
		}
		return out, nil
	}
	return nil, errors.New("yt-dlp printed no info json")
}

func (b *Backend) base() *goytdlp.Command {
	cmd := goytdlp.New().
		NoPlaylist().
		Retries(strconv.Itoa(b.cfg.NetworkRetries)).
		ExtractorRetries(strconv.Itoa(b.cfg.ExtractorRetries))

	if b.cfg.Executable != "" {
		cmd.SetExecutable(b.cfg.Executable)
	}
	if b.cfg.UserAgent != "" {
		cmd.AddHeaders("User-Agent:" + b.cfg.UserAgent)
	}
	if args := extractorArgs(b.cfg.PlayerClients); args != "" {
		cmd.ExtractorArgs(args)
	}
	if b.cfg.SleepRequests > 0 {
		cmd.SleepRequests(b.cfg.SleepRequests.Seconds())
	}
	return cmd
}

func (b *Backend) downloadCommand(opts appdownload.BackendOptions, dir string) *goytdlp.Command {
	cmd := b.base().
		Format(opts.Format.String()).
		Output(filepath.Join(dir, b.cfg.OutputTemplate)).
		FragmentRetries(strconv.Itoa(b.cfg.FragmentRetries)).
		PrintJSON()

	if b.cfg.SleepInterval > 0 {
		cmd.SleepInterval(b.cfg.SleepInterval.Seconds())
		if b.cfg.MaxSleepInterval > b.cfg.SleepInterval {
			cmd.MaxSleepInterval(b.cfg.MaxSleepInterval.Seconds())
		}
	}
	if b.cfg.ConcurrentFragments > 1 {
		cmd.ConcurrentFragments(b.cfg.ConcurrentFragments)
	}
	if opts.AudioOnly && b.cfg.AudioFormat != "" {
		cmd.ExtractAudio().AudioFormat(b.cfg.AudioFormat)
		if b.cfg.AudioQuality != "" {
			cmd.AudioQuality(b.cfg.AudioQuality)
		}
	}
	return cmd
}

func extractorArgs(playerClients string) string {
	clients := strings.Trim(strings.ReplaceAll(playerClients, " ", ""), ",")
	if clients == "" {
		return ""
	}
	return "youtube:player_client=" + clients + ";player_skip=configs"
}

func metadataFromInfo(info *goytdlp.ExtractedInfo) download.Metadata {
	var meta download.Metadata
	if info == nil {
		return meta
	}
	if info.Title != nil {
		meta.Title = *info.Title
	}
	if info.Uploader != nil {
		meta.Uploader = *info.Uploader
	}
	if info.Duration != nil {
		meta.Duration = *info.Duration
	}
	return meta
}

// reportedPath returns the file yt-dlp says it wrote. Audio extraction
// replaces the extension after the info json is printed.
func reportedPath(info *goytdlp.ExtractedInfo, dir string, audioOnly bool, audioFormat string) string {
	if info == nil || info.Filename == nil || *info.Filename == "" {
		return ""
	}
	path := *info.Filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if audioOnly && audioFormat != "" {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + "." + strings.ToLower(audioFormat)
	}
	return path
}

func reportFromUpdate(update goytdlp.ProgressUpdate) appdownload.ProgressReport {
	return appdownload.ProgressReport{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		Percent:         update.PercentString(),
	}
}

// runError folds yt-dlp stderr into the error so failure classification can
// see the upstream message.
func runError(err error, result *goytdlp.Result) error {
	if result == nil {
		return err
	}
	stderr := strings.TrimSpace(result.Stderr)
	if stderr == "" || strings.Contains(err.Error(), stderr) {
		return err
	}
	if len(stderr) > maxStderrBytes {
		stderr = stderr[len(stderr)-maxStderrBytes:]
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
