package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	appdownload "ytfetch/internal/application/download"
	"ytfetch/internal/config"
	"ytfetch/internal/infrastructure/ffmpeg"
	"ytfetch/internal/infrastructure/filesystem"
	"ytfetch/internal/infrastructure/memstore"
	"ytfetch/internal/infrastructure/native"
	"ytfetch/internal/infrastructure/objectstore"
	"ytfetch/internal/infrastructure/redisstore"
	"ytfetch/internal/infrastructure/ytdlp"
)

// App is the fully wired download service plus the resources it owns.
type App struct {
	Service   *appdownload.Service
	Workspace *filesystem.Workspace
	closers   []io.Closer
}

// Close shuts the service down and releases stores.
func (a *App) Close(ctx context.Context) error {
	err := a.Service.Close(ctx)
	for _, c := range a.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New wires store, backend, workspace and mirror from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	workspace := filesystem.NewWorkspace(cfg.DownloadDir)
	if err := workspace.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	store, closer, err := NewJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Workspace: workspace}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}

	backend, err := NewBackend(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, app.closeStores())
	}

	opts := appdownload.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		DelayMin:      cfg.DelayMin,
		DelayMax:      cfg.DelayMax,
		Logger:        logger,
	}
	if cfg.MirrorEnabled() {
		mirror, err := objectstore.New(ctx, objectstore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			return nil, errors.Join(err, app.closeStores())
		}
		opts.Mirror = mirror
		logger.Info("artifact mirror enabled", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	}

	app.Service = appdownload.NewService(store, backend, workspace, opts)
	return app, nil
}

func (a *App) closeStores() error {
	var err error
	for _, c := range a.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

// NewJobStore selects the job store named by JOB_STORE.
func NewJobStore(ctx context.Context, cfg config.Config) (appdownload.JobStore, io.Closer, error) {
	switch cfg.JobStore {
	case "", "memory":
		return memstore.New(), nil, nil
	case "redis":
		store, err := redisstore.New(ctx, redisstore.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
			TTL:       cfg.RedisJobTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown JOB_STORE %q", cfg.JobStore)
	}
}

// NewBackend selects the extraction backend named by BACKEND.
func NewBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (appdownload.Backend, error) {
	switch cfg.Backend {
	case "", "ytdlp":
		return newYtdlp(ctx, cfg, logger)
	case "native":
		return newNative(cfg, logger), nil
	case "fallback":
		primary, err := newYtdlp(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return appdownload.NewFallback(logger, primary, newNative(cfg, logger)), nil
	default:
		return nil, fmt.Errorf("unknown BACKEND %q", cfg.Backend)
	}
}

func newYtdlp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ytdlp.Backend, error) {
	if cfg.YtdlpAutoInstall && cfg.YtdlpPath == "" {
		if err := ytdlp.EnsureInstalled(ctx); err != nil {
			return nil, err
		}
	}
	return ytdlp.New(ytdlp.Config{
		Executable:          cfg.YtdlpPath,
		NetworkRetries:      cfg.NetworkRetries,
		FragmentRetries:     cfg.FragmentRetries,
		ExtractorRetries:    cfg.ExtractorRetries,
		SleepInterval:       cfg.SleepInterval,
		MaxSleepInterval:    cfg.MaxSleepInterval,
		SleepRequests:       cfg.SleepRequests,
		ConcurrentFragments: cfg.ConcurrentFragments,
		UserAgent:           cfg.UserAgent,
		PlayerClients:       cfg.PlayerClients,
		AudioFormat:         cfg.AudioFormat,
		AudioQuality:        cfg.AudioQuality,
	}, logger.With("backend", "ytdlp")), nil
}

func newNative(cfg config.Config, logger *slog.Logger) *native.Backend {
	return native.New(native.Config{
		UserAgent:    cfg.UserAgent,
		AudioFormat:  cfg.AudioFormat,
		AudioQuality: cfg.AudioQuality,
	}, ffmpeg.NewTranscoder(cfg.FFmpegPath), logger.With("backend", "native"))
}
