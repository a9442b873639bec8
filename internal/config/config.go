package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds runtime settings for the server and CLI.
type Config struct {
	ServerAddr      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DownloadDir     string
	MaxConcurrent   int
	DelayMin        time.Duration
	DelayMax        time.Duration
	JobRetention    time.Duration
	JanitorInterval time.Duration

	Backend             string
	YtdlpPath           string
	YtdlpAutoInstall    bool
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
	FFmpegPath          string

	JobStore       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	RedisJobTTL    time.Duration

	SubmitRate  float64
	SubmitBurst int
	CORSOrigins []string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	MinioBucket    string
}

// Load reads environment variables and returns normalized runtime config.
func Load() Config {
	cfg := Config{
		ServerAddr:      serverAddr(),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DownloadDir:     getEnv("DOWNLOAD_DIR", "./downloads"),
		MaxConcurrent:   getEnvInt("MAX_CONCURRENT_JOBS", 4),
		DelayMin:        getEnvDuration("PRE_REQUEST_DELAY_MIN", time.Second),
		DelayMax:        getEnvDuration("PRE_REQUEST_DELAY_MAX", 3*time.Second),
		JobRetention:    getEnvDuration("JOB_RETENTION", 0),
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", 5*time.Minute),

		Backend:             strings.ToLower(getEnv("BACKEND", "ytdlp")),
		YtdlpPath:           strings.TrimSpace(os.Getenv("YTDLP_PATH")),
		YtdlpAutoInstall:    getEnvBool("YTDLP_AUTO_INSTALL", false),
		NetworkRetries:      getEnvInt("NETWORK_RETRIES", 10),
		FragmentRetries:     getEnvInt("FRAGMENT_RETRIES", 3),
		ExtractorRetries:    getEnvInt("EXTRACTOR_RETRIES", 3),
		SleepInterval:       getEnvDuration("SLEEP_INTERVAL", time.Second),
		MaxSleepInterval:    getEnvDuration("MAX_SLEEP_INTERVAL", 5*time.Second),
		SleepRequests:       getEnvDuration("SLEEP_REQUESTS", 500*time.Millisecond),
		ConcurrentFragments: getEnvInt("CONCURRENT_FRAGMENTS", 4),
		UserAgent:           getEnv("USER_AGENT", defaultUserAgent),
		PlayerClients:       getEnv("PLAYER_CLIENTS", "android,web"),
		AudioFormat:         strings.ToLower(getEnv("AUDIO_FORMAT", "mp3")),
		AudioQuality:        getEnv("AUDIO_QUALITY", "192K"),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),

		JobStore:       strings.ToLower(getEnv("JOB_STORE", "memory")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvNonNegativeInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "ytfetch:job:"),
		RedisJobTTL:    getEnvDuration("REDIS_JOB_TTL", 24*time.Hour),

		SubmitRate:  getEnvFloat("SUBMIT_RATE", 2),
		SubmitBurst: getEnvInt("SUBMIT_BURST", 5),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		MinioEndpoint:  strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    os.Getenv("MINIO_REGION"),
		MinioBucket:    getEnv("MINIO_BUCKET", "downloads"),
	}

	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if cfg.MaxSleepInterval < cfg.SleepInterval {
		cfg.MaxSleepInterval = cfg.SleepInterval
	}
	return cfg
}

// MirrorEnabled reports whether finished artifacts are copied to object storage.
func (c Config) MirrorEnabled() bool {
	return c.MinioEndpoint != ""
}

// serverAddr honours PORT for platforms that only set a port number.
func serverAddr() string {
	if addr := strings.TrimSpace(os.Getenv("SERVER_ADDR")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":8080"
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvNonNegativeInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.Atoi(value)
	if err != nil || out < 0 {
		return fallback
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.ParseFloat(value, 64)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return out
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
