package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Feed      FeedConfig      `yaml:"feed"`
	API       APIConfig       `yaml:"api"`
	Geocode   GeocodeConfig   `yaml:"geocode"`
	Publisher PublisherConfig `yaml:"publisher"`
	Prefs     PrefsConfig     `yaml:"prefs"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig holds agent-level configuration
type AgentConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"` // /metrics and /healthz listener
}

// FeedConfig holds the room feed transport configuration
type FeedConfig struct {
	ServerURL      string `yaml:"server_url"`
	ReconnectDelay string `yaml:"reconnect_delay"` // fixed delay between reconnect attempts
	SnapshotCutoff string `yaml:"snapshot_cutoff"` // max age of adopted snapshot entries
}

// APIConfig holds the REST endpoint configuration
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// GeocodeConfig holds the reverse-geocode cache configuration
type GeocodeConfig struct {
	ResolverURL string `yaml:"resolver_url"`
	Timeout     string `yaml:"timeout"`
	Capacity    int    `yaml:"capacity"`
	TTL         string `yaml:"ttl"`
	Precision   int    `yaml:"precision"` // decimal places for the quantized key
}

// PublisherConfig holds the background publisher configuration
type PublisherConfig struct {
	MinInterval     string `yaml:"min_interval"`     // floor between handled samples
	DesiredInterval string `yaml:"desired_interval"` // cadence hint for the location source
}

// PrefsConfig holds the sharing preference store configuration
type PrefsConfig struct {
	Driver    string `yaml:"driver"` // "memory", "nats" or "redis"
	NATSURL   string `yaml:"nats_url"`
	Bucket    string `yaml:"bucket"`
	Embedded  bool   `yaml:"embedded"`
	DataDir   string `yaml:"data_dir"`
	RedisAddr string `yaml:"redis_addr"`
}

// AuthConfig holds credential configuration
type AuthConfig struct {
	Token     string `yaml:"token"` // bearer credential presented to the feed and REST endpoints
	JWTIssuer string `yaml:"jwt_issuer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Agent: AgentConfig{
			Name:    getEnvOrDefault("AGENT_NAME", "presence-agent"),
			Version: getEnvOrDefault("AGENT_VERSION", "v1"),
			Port:    getEnvIntOrDefault("AGENT_PORT", 8090),
		},
		Feed: FeedConfig{
			ServerURL:      getEnvOrDefault("FEED_SERVER_URL", ""),
			ReconnectDelay: getEnvOrDefault("FEED_RECONNECT_DELAY", "3s"),
			SnapshotCutoff: getEnvOrDefault("FEED_SNAPSHOT_CUTOFF", "60s"),
		},
		API: APIConfig{
			BaseURL: getEnvOrDefault("API_BASE_URL", "http://localhost:8080"),
			Timeout: getEnvOrDefault("API_TIMEOUT", "10s"),
		},
		Geocode: GeocodeConfig{
			ResolverURL: getEnvOrDefault("GEOCODE_RESOLVER_URL", "https://nominatim.openstreetmap.org/reverse"),
			Timeout:     getEnvOrDefault("GEOCODE_TIMEOUT", "5s"),
			Capacity:    getEnvIntOrDefault("GEOCODE_CAPACITY", 100),
			TTL:         getEnvOrDefault("GEOCODE_TTL", "15m"),
			Precision:   getEnvIntOrDefault("GEOCODE_PRECISION", 4),
		},
		Publisher: PublisherConfig{
			MinInterval:     getEnvOrDefault("PUBLISHER_MIN_INTERVAL", "5s"),
			DesiredInterval: getEnvOrDefault("PUBLISHER_DESIRED_INTERVAL", "15s"),
		},
		Prefs: PrefsConfig{
			Driver:    getEnvOrDefault("PREFS_DRIVER", "memory"),
			NATSURL:   getEnvOrDefault("PREFS_NATS_URL", ""),
			Bucket:    getEnvOrDefault("PREFS_BUCKET", "sharing-prefs"),
			Embedded:  getEnvBoolOrDefault("PREFS_NATS_EMBEDDED", false),
			DataDir:   getEnvOrDefault("PREFS_NATS_DATA_DIR", "./prefs-data"),
			RedisAddr: getEnvOrDefault("PREFS_REDIS_ADDR", "localhost:6379"),
		},
		Auth: AuthConfig{
			Token:     getEnvOrDefault("AUTH_TOKEN", ""),
			JWTIssuer: getEnvOrDefault("JWT_ISSUER", "campus-auth"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	// Validate required fields
	if config.Auth.Token == "" {
		return nil, fmt.Errorf("AUTH_TOKEN environment variable is required")
	}

	if err := validateDurations(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateDurations parses every duration-valued field once at load time
func validateDurations(c *Config) error {
	fields := map[string]string{
		"FEED_RECONNECT_DELAY":       c.Feed.ReconnectDelay,
		"FEED_SNAPSHOT_CUTOFF":       c.Feed.SnapshotCutoff,
		"API_TIMEOUT":                c.API.Timeout,
		"GEOCODE_TIMEOUT":            c.Geocode.Timeout,
		"GEOCODE_TTL":                c.Geocode.TTL,
		"PUBLISHER_MIN_INTERVAL":     c.Publisher.MinInterval,
		"PUBLISHER_DESIRED_INTERVAL": c.Publisher.DesiredInterval,
	}
	for name, value := range fields {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	return nil
}

// GetReconnectDelay returns the reconnect delay as a duration, floored at one
// second so a misconfigured delay cannot cause a reconnect storm
func (c *FeedConfig) GetReconnectDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.ReconnectDelay)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		d = time.Second
	}
	return d, nil
}

// GetSnapshotCutoff returns the snapshot adoption cutoff as a duration
func (c *FeedConfig) GetSnapshotCutoff() (time.Duration, error) {
	return time.ParseDuration(c.SnapshotCutoff)
}

// GetTimeout returns the API timeout as a duration
func (c *APIConfig) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}

// GetTTL returns the geocode cache TTL as a duration
func (c *GeocodeConfig) GetTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

// GetTimeout returns the resolver timeout as a duration
func (c *GeocodeConfig) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}

// GetMinInterval returns the minimum sample interval, floored at five seconds
// to bound battery cost and server load
func (c *PublisherConfig) GetMinInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.MinInterval)
	if err != nil {
		return 0, err
	}
	if d < 5*time.Second {
		d = 5 * time.Second
	}
	return d, nil
}

// GetDesiredInterval returns the desired sample interval as a duration
func (c *PublisherConfig) GetDesiredInterval() (time.Duration, error) {
	return time.ParseDuration(c.DesiredInterval)
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
