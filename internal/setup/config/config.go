package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentRESTVersion   = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	REST   RESTConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the API and workers.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Stream     Stream     `koanf:"stream"`
	Identity   Identity   `koanf:"identity"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Full connection string. Overrides the individual fields when set.
	DSN string `koanf:"dsn"`
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Stream contains the change event stream configuration.
type Stream struct {
	// Stream key. Dead letters go to "<key>:dead".
	Key string `koanf:"key"`
	// Consumer group shared by reactor workers.
	Group string `koanf:"group"`
}

// Identity contains the identity provider configuration.
type Identity struct {
	// Provider is "firebase" or "static".
	Provider string `koanf:"provider"`
	// Firebase project ID.
	ProjectID string `koanf:"project_id"`
	// Path to a service account file. Uses application default credentials when empty.
	CredentialsFile string `koanf:"credentials_file"`
	// Fixed token table for the static provider.
	StaticTokens map[string]StaticIdentity `koanf:"static_tokens"`
}

// StaticIdentity is one entry of the static token table.
type StaticIdentity struct {
	UserID        string `koanf:"user_id"`
	DisplayName   string `koanf:"display_name"`
	EmailVerified bool   `koanf:"email_verified"`
	Anonymous     bool   `koanf:"anonymous"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment reported with traces.
	Environment string `koanf:"environment"`
}

// RESTConfig contains REST API specific configuration.
type RESTConfig struct {
	// Version of the REST config.
	Version int `koanf:"version"`
	// Address to listen on.
	Host string `koanf:"host"`
	// Port to listen on.
	Port int `koanf:"port"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Client IP detection configuration.
	IP IP `koanf:"ip"`
	// Rate limiting configuration.
	RateLimit RateLimit `koanf:"rate_limit"`
}

// IP contains client IP detection configuration.
type IP struct {
	// Proxies, as IPs or CIDR ranges, whose forwarding headers are trusted.
	TrustedProxies []string `koanf:"trusted_proxies"`
	// Headers checked in order for the client IP when the peer is trusted.
	CustomHeaders []string `koanf:"custom_headers"`
}

// RateLimit contains per-client rate limiting configuration.
type RateLimit struct {
	// Requests allowed per second.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Maximum burst size.
	BurstSize int `koanf:"burst_size"`
	// Violations before a client is blocked.
	StrikeLimit int `koanf:"strike_limit"`
	// Block duration in seconds.
	BlockDuration int `koanf:"block_duration"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Outbox relay configuration.
	Relay Relay `koanf:"relay"`
	// Reactor configuration.
	Reactor Reactor `koanf:"reactor"`
}

// Relay configures the outbox relay worker.
type Relay struct {
	// Outbox rows published per batch.
	BatchSize int `koanf:"batch_size"`
	// Poll interval in milliseconds when the outbox is empty.
	PollInterval int `koanf:"poll_interval"`
}

// Reactor configures the event reactor worker.
type Reactor struct {
	// Stream entries read per batch.
	BatchSize int64 `koanf:"batch_size"`
	// Events handled concurrently within a batch.
	Concurrency int `koanf:"concurrency"`
	// Time to block waiting for new entries in milliseconds.
	BlockTimeout int `koanf:"block_timeout"`
	// Deliveries before an entry is moved to the dead-letter stream.
	MaxDeliveries int `koanf:"max_deliveries"`
}

// LoadConfig loads the configuration files from the first config path that
// has them. Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".fibs",
		homeDir + "/.fibs/config",
		"/etc/fibs/config",
		"/app/config",
		"config",
		".",
	}

	return loadFromPaths(configPaths)
}

// LoadFrom loads the configuration files from a single directory.
func LoadFrom(dir string) (*Config, error) {
	config, _, err := loadFromPaths([]string{dir})
	return config, err
}

func loadFromPaths(paths []string) (*Config, string, error) {
	var config Config

	usedConfigPath := ""
	for _, target := range []struct {
		name string
		dest any
	}{
		{"common", &config.Common},
		{"rest", &config.REST},
		{"worker", &config.Worker},
	} {
		path, err := loadFile(paths, target.name, target.dest)
		if err != nil {
			return nil, "", err
		}

		if usedConfigPath == "" {
			usedConfigPath = path
		}
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("rest", config.REST.Version, CurrentRESTVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// loadFile unmarshals the first <path>/<name>.toml found into dest.
func loadFile(paths []string, name string, dest any) (string, error) {
	for _, path := range paths {
		k := koanf.New(".")

		configPath := fmt.Sprintf("%s/%s.toml", path, name)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			continue
		}

		if err := k.Unmarshal("", dest); err != nil {
			return "", fmt.Errorf("error unmarshaling %s.toml: %w", name, err)
		}

		return path, nil
	}

	return "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, name)
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/fibgame/fibs/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
