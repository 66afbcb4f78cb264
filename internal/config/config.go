// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Storage      StorageConfig
	Retention    RetentionConfig
	Orchestrator OrchestratorConfig
	Providers    ProvidersConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Environment     string
	CORSOrigin      string
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	URL          string
	Host         string
	Port         string
	Password     string
	Database     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PoolTimeout  time.Duration
}

// NATSConfig configures the optional message-queue transport for job
// dispatch. When URL is empty the orchestrator falls back to its
// in-process channel (see internal/orchestrator).
type NATSConfig struct {
	Enabled        bool
	URL            string
	DispatchSubject string
	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// StorageConfig roots the content-addressed on-disk layout described in
// spec.md §6: {root}/uploads, {root}/audio/{job_id}, {root}/stems/{job_id},
// {root}/midi/{job_id}.
type StorageConfig struct {
	Root              string
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// RetentionConfig governs how long a job's assets live before the Reaper
// collects them.
type RetentionConfig struct {
	Window       time.Duration
	ReaperPeriod time.Duration
	// StaleHeartbeat is how old a non-terminal job's last_heartbeat must be
	// before the Reclaim sweep re-dispatches it (Open Question #3).
	StaleHeartbeat time.Duration
}

// OrchestratorConfig sizes the bounded worker pool that drives jobs through
// the pipeline (§5).
type OrchestratorConfig struct {
	Workers   int
	QueueSize int
	PollDelay time.Duration
}

// ProvidersConfig collects the credential pairs named in spec.md §6's
// Environment list, one per external service. A streaming, stem or MIDI
// provider whose credentials are empty reports IsConfigured()==false and is
// skipped by selection (§4.1); an identifier without credentials is still
// called and returns an error.
type ProvidersConfig struct {
	TidalClientID      string
	TidalClientSecret  string
	DeezerARL          string
	QobuzAppID         string
	QobuzAppSecret     string
	QobuzUserAuthToken string
	LalalAPIKey        string
	FadrAPIKey         string
	SpotifyClientID    string
	SpotifyClientSecret string
	AppleMusicToken    string
	MusicBrainzUserAgent string

	LLMAPIKey   string
	FeaturesDir string
}

func New() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		host := getEnv("DATABASE_HOST", "localhost")
		port := getEnv("DATABASE_PORT", "5432")
		username := getEnv("DATABASE_USER", "postgres")
		password := getEnv("DATABASE_PASSWORD", "")
		database := getEnv("DATABASE_NAME", "trackforge_dev")
		sslmode := getEnv("DATABASE_SSLMODE", "disable")

		databaseURL = "postgres://" + username + ":" + password + "@" + host + ":" + port + "/" + database + "?sslmode=" + sslmode
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     getEnv("ENVIRONMENT", "development"),
			CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			URL:          databaseURL,
			Host:         getEnv("DATABASE_HOST", "localhost"),
			Port:         getEnv("DATABASE_PORT", "5432"),
			Username:     getEnv("DATABASE_USER", "postgres"),
			Password:     getEnv("DATABASE_PASSWORD", ""),
			Database:     getEnv("DATABASE_NAME", "trackforge_dev"),
			SSLMode:      getEnv("DATABASE_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DATABASE_MAX_IDLE_CONNS", 10),
			MaxLifetime:  getDurationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			Database:     getIntEnv("REDIS_DATABASE", 0),
			MaxRetries:   getIntEnv("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 20),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 5*time.Second),
		},
		NATS: NATSConfig{
			Enabled:         getEnv("NATS_URL", "") != "",
			URL:             getEnv("NATS_URL", ""),
			DispatchSubject: getEnv("NATS_DISPATCH_SUBJECT", "jobs.dispatch"),
			ConnectTimeout:  getDurationEnv("NATS_CONNECT_TIMEOUT", 5*time.Second),
			MaxReconnects:   getIntEnv("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:   getDurationEnv("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Storage: StorageConfig{
			Root:              getEnv("STORAGE_DIR", "./data"),
			MaxUploadBytes:    getInt64Env("MAX_UPLOAD_BYTES", 100*1024*1024),
			AllowedExtensions: []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg"},
		},
		Retention: RetentionConfig{
			Window:         getDurationEnv("RETENTION_WINDOW", 24*time.Hour),
			ReaperPeriod:   getDurationEnv("REAPER_PERIOD", time.Hour),
			StaleHeartbeat: getDurationEnv("RECLAIM_STALE_AFTER", 10*time.Minute),
		},
		Orchestrator: OrchestratorConfig{
			Workers:   getIntEnv("ORCHESTRATOR_WORKERS", 8),
			QueueSize: getIntEnv("ORCHESTRATOR_QUEUE", 256),
			PollDelay: getDurationEnv("PROVIDER_POLL_DELAY", 3*time.Second),
		},
		Providers: ProvidersConfig{
			TidalClientID:        getEnv("TIDAL_CLIENT_ID", ""),
			TidalClientSecret:    getEnv("TIDAL_CLIENT_SECRET", ""),
			DeezerARL:            getEnv("DEEZER_ARL", ""),
			QobuzAppID:           getEnv("QOBUZ_APP_ID", ""),
			QobuzAppSecret:       getEnv("QOBUZ_APP_SECRET", ""),
			QobuzUserAuthToken:   getEnv("QOBUZ_USER_AUTH_TOKEN", ""),
			LalalAPIKey:          getEnv("LALAL_API_KEY", ""),
			FadrAPIKey:           getEnv("FADR_API_KEY", ""),
			SpotifyClientID:      getEnv("SPOTIFY_CLIENT_ID", ""),
			SpotifyClientSecret:  getEnv("SPOTIFY_CLIENT_SECRET", ""),
			AppleMusicToken:      getEnv("APPLE_MUSIC_TOKEN", ""),
			MusicBrainzUserAgent: getEnv("MUSICBRAINZ_USER_AGENT", "trackforge/1.0"),
			LLMAPIKey:            getEnv("LLM_API_KEY", ""),
			FeaturesDir:          getEnv("FEATURES_DIR", "./data/features"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
