package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// SchedulerConfig holds tick loop settings. UseUTC selects the timezone
// the API and MCP surfaces display timestamps in; schedule evaluation
// itself always runs in UTC.
type SchedulerConfig struct {
	TickInterval time.Duration
	UseUTC       bool
}

// ExecutorConfig holds settings for the concrete executor bodies.
type ExecutorConfig struct {
	ShellTimeout time.Duration
	OllamaURL    string
	AIModel      string
	ToolBaseURL  string
}

// NotificationConfig holds reminder delivery settings.
type NotificationConfig struct {
	BarkURL     string
	BarkEnabled bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Scheduler    SchedulerConfig
	Executor     ExecutorConfig
	Notification NotificationConfig

	Mode          string // http, mcp, both
	StateDir      string
	LogLevel      string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:7080"
	defaultLogLevel      = "info"
	defaultMode          = "http"
	defaultTickInterval  = 5 * time.Second
	defaultShellTimeout  = 5 * time.Minute
	defaultOllamaURL     = "http://127.0.0.1:11434"
	defaultAIModel       = "llama3.2"
	defaultShutdownGrace = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > environment variables > .env file > defaults.
func Parse() (*Config, error) {
	// Load .env if present: current directory first, then the config dir.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "mcpsched", ".env"))
	}
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("MCPSCHED_ADDR", defaultAddr),
			AuthToken: getEnvString("MCPSCHED_AUTH_TOKEN", ""),
		},
		Scheduler: SchedulerConfig{
			TickInterval: getEnvDuration("MCPSCHED_TICK_INTERVAL", defaultTickInterval),
			UseUTC:       getEnvBool("MCPSCHED_USE_UTC", false),
		},
		Executor: ExecutorConfig{
			ShellTimeout: getEnvDuration("MCPSCHED_SHELL_TIMEOUT", defaultShellTimeout),
			OllamaURL:    getEnvString("MCPSCHED_OLLAMA_URL", defaultOllamaURL),
			AIModel:      getEnvString("MCPSCHED_AI_MODEL", defaultAIModel),
			ToolBaseURL:  getEnvString("MCPSCHED_TOOL_BASE_URL", ""),
		},
		Notification: NotificationConfig{
			BarkURL:     getEnvString("MCPSCHED_BARK_URL", ""),
			BarkEnabled: getEnvBool("MCPSCHED_BARK_ENABLED", false),
		},
		Mode:          getEnvString("MCPSCHED_MODE", defaultMode),
		StateDir:      getEnvString("MCPSCHED_STATE_DIR", ""),
		LogLevel:      getEnvString("MCPSCHED_LOG_LEVEL", defaultLogLevel),
		ShutdownGrace: getEnvDuration("MCPSCHED_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	var addr, mode, logLevel, stateDir string
	var tickInterval, shutdownGrace time.Duration
	var useUTC bool

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp, or both")
	flag.StringVar(&stateDir, "state-dir", "", "Directory to store the database")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.DurationVar(&tickInterval, "tick-interval", 0, "Interval between due-task scans")
	flag.BoolVar(&useUTC, "use-utc", false, "Display timestamps in UTC instead of local time")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if tickInterval > 0 {
		cfg.Scheduler.TickInterval = tickInterval
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.Scheduler.UseUTC = useUTC
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = defaultTickInterval
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q: must be http, mcp, or both", cfg.Mode)
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "mcpsched")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
