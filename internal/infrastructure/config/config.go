package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink types selectable via relay.sink.
const (
	SinkEnergieMon = "energiemon"
	SinkMQTT       = "mqtt"
	SinkInfluxDB   = "influxdb"
)

// Channel kinds understood by the Sorel source.
const (
	ChannelSensor = "sensor"
	ChannelRelay  = "relay"
)

// Default poll intervals per sink, in seconds.
const (
	defaultPollIntervalHTTP = 60
	defaultPollIntervalMQTT = 15

	// maxDrainLimit bounds relay.drain_limit.
	maxDrainLimit = 10000

	// maxDefaultCycleTimeout caps the derived watchdog when none is configured.
	maxDefaultCycleTimeout = 45
)

// Config is the root configuration structure for the solbox relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay      RelayConfig      `yaml:"relay"`
	Sorel      SorelConfig      `yaml:"sorel"`
	EnergieMon EnergieMonConfig `yaml:"energiemon"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Queue      QueueConfig      `yaml:"queue"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RelayConfig controls the polling cycle and delivery pipeline.
type RelayConfig struct {
	// Sink selects the downstream: "energiemon", "mqtt" or "influxdb".
	Sink string `yaml:"sink"`

	// PollInterval is the time between cycles in seconds.
	// Zero selects the sink default (60s for energiemon/influxdb, 15s for mqtt).
	PollInterval int `yaml:"poll_interval"`

	// CycleTimeout is the watchdog deadline for one cycle in seconds.
	// Zero derives it from the poll interval.
	CycleTimeout int `yaml:"cycle_timeout"`

	// DrainLimit bounds how many queued readings are retried per cycle.
	DrainLimit int `yaml:"drain_limit"`
}

// SorelConfig contains the Sorel Connect controller settings.
type SorelConfig struct {
	// BaseURL overrides the controller URL. If empty it is derived from DeviceID.
	BaseURL  string `yaml:"base_url"`
	DeviceID string `yaml:"device_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SessionID skips the login call and reuses an existing nabto session.
	SessionID string `yaml:"session_id"`

	// InsecureSkipVerify disables TLS verification; the hosted plugin
	// endpoints are frequently served with certificates for another name.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`

	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig maps one controller sensor or relay onto a series key.
type ChannelConfig struct {
	Series string `yaml:"series"`
	Kind   string `yaml:"kind"`
	ID     string `yaml:"id"`

	// Endpoint is the JSON resource to query. Defaults to sensors.json or
	// relays.json depending on Kind.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// EnergieMonConfig contains the HTTP ingestion API settings.
type EnergieMonConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
	Timeout     int    `yaml:"timeout"`
}

// QueueConfig contains the durable queue storage settings.
type QueueConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, then validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOLBOX_SECTION_KEY
// For example: SOLBOX_QUEUE_PATH, SOLBOX_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	cfg.resolveDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// The channel list mirrors the Solbox installation the relay was built for.
func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Sink:       SinkEnergieMon,
			DrainLimit: 100,
		},
		Sorel: SorelConfig{
			Timeout: 10,
			Channels: []ChannelConfig{
				{Series: "temp_kollektor", Kind: ChannelSensor, ID: "1"},
				{Series: "temp_boiler_unten", Kind: ChannelSensor, ID: "2"},
				{Series: "temp_boiler_oben", Kind: ChannelSensor, ID: "3"},
				{Series: "pumpe_status", Kind: ChannelRelay, ID: "1"},
			},
		},
		EnergieMon: EnergieMonConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "solbox-relay",
			},
			QoS:         1,
			TopicPrefix: "solbox",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Measurement: "solbox",
			Timeout:     10,
		},
		Queue: QueueConfig{
			Path:        "/data/queue.dat",
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9108,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOLBOX_SECTION_KEY
//
// The names used by earlier solbox deployments are still read, and the
// current name wins when both are set:
//
//	SOLBOX_MEASUREMENT_INTERVAL_IN_SECONDS -> SOLBOX_POLL_INTERVAL
//	SOLBOX_USERNAME, SOLBOX_PASSWORD       -> SOLBOX_SOREL_USERNAME, SOLBOX_SOREL_PASSWORD
//	SOLBOX_SOREL_OVERRIDE_SESSION_ID       -> SOLBOX_SOREL_SESSION_ID
//	ENERGIE_MON_BASE_URL, ENERGIE_MON_TOKEN -> SOLBOX_ENERGIEMON_BASE_URL, SOLBOX_ENERGIEMON_TOKEN
//	SOLBOX_MQTT_BROKER_HOST, _PORT         -> SOLBOX_MQTT_HOST, SOLBOX_MQTT_PORT
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}

	// Relay
	setString("SOLBOX_SINK", &cfg.Relay.Sink)
	setInt("SOLBOX_MEASUREMENT_INTERVAL_IN_SECONDS", &cfg.Relay.PollInterval)
	setInt("SOLBOX_POLL_INTERVAL", &cfg.Relay.PollInterval)
	setInt("SOLBOX_CYCLE_TIMEOUT", &cfg.Relay.CycleTimeout)
	setInt("SOLBOX_DRAIN_LIMIT", &cfg.Relay.DrainLimit)

	// Sorel
	setString("SOLBOX_SOREL_BASE_URL", &cfg.Sorel.BaseURL)
	setString("SOLBOX_SOREL_DEVICE_ID", &cfg.Sorel.DeviceID)
	setString("SOLBOX_USERNAME", &cfg.Sorel.Username)
	setString("SOLBOX_SOREL_USERNAME", &cfg.Sorel.Username)
	setString("SOLBOX_PASSWORD", &cfg.Sorel.Password)
	setString("SOLBOX_SOREL_PASSWORD", &cfg.Sorel.Password)
	setString("SOLBOX_SOREL_OVERRIDE_SESSION_ID", &cfg.Sorel.SessionID)
	setString("SOLBOX_SOREL_SESSION_ID", &cfg.Sorel.SessionID)

	// EnergieMon
	setString("ENERGIE_MON_BASE_URL", &cfg.EnergieMon.BaseURL)
	setString("SOLBOX_ENERGIEMON_BASE_URL", &cfg.EnergieMon.BaseURL)
	setString("ENERGIE_MON_TOKEN", &cfg.EnergieMon.Token)
	setString("SOLBOX_ENERGIEMON_TOKEN", &cfg.EnergieMon.Token)

	// MQTT
	setString("SOLBOX_MQTT_BROKER_HOST", &cfg.MQTT.Broker.Host)
	setString("SOLBOX_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("SOLBOX_MQTT_BROKER_PORT", &cfg.MQTT.Broker.Port)
	setInt("SOLBOX_MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("SOLBOX_MQTT_TOPIC", &cfg.MQTT.TopicPrefix)
	setString("SOLBOX_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("SOLBOX_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// InfluxDB
	setString("SOLBOX_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("SOLBOX_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("SOLBOX_INFLUXDB_ORG", &cfg.InfluxDB.Org)
	setString("SOLBOX_INFLUXDB_BUCKET", &cfg.InfluxDB.Bucket)

	// Queue
	setString("SOLBOX_QUEUE_PATH", &cfg.Queue.Path)

	// API
	setInt("SOLBOX_API_PORT", &cfg.API.Port)

	// Logging
	setString("SOLBOX_LOG_LEVEL", &cfg.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// resolveDefaults fills in values whose default depends on other settings.
func (c *Config) resolveDefaults() {
	if c.Relay.PollInterval == 0 {
		if c.Relay.Sink == SinkMQTT {
			c.Relay.PollInterval = defaultPollIntervalMQTT
		} else {
			c.Relay.PollInterval = defaultPollIntervalHTTP
		}
	}

	if c.Relay.CycleTimeout == 0 {
		timeout := c.Relay.PollInterval * 3 / 4
		if timeout > maxDefaultCycleTimeout {
			timeout = maxDefaultCycleTimeout
		}
		if timeout < 1 {
			timeout = 1
		}
		c.Relay.CycleTimeout = timeout
	}

	for i := range c.Sorel.Channels {
		ch := &c.Sorel.Channels[i]
		if ch.Endpoint != "" {
			continue
		}
		switch ch.Kind {
		case ChannelSensor:
			ch.Endpoint = "sensors.json"
		case ChannelRelay:
			ch.Endpoint = "relays.json"
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Relay validation
	switch c.Relay.Sink {
	case SinkEnergieMon, SinkMQTT, SinkInfluxDB:
	default:
		errs = append(errs, fmt.Sprintf("relay.sink must be one of energiemon, mqtt, influxdb (got %q)", c.Relay.Sink))
	}
	if c.Relay.PollInterval < 1 {
		errs = append(errs, "relay.poll_interval must be at least 1 second")
	}
	if c.Relay.CycleTimeout < 1 {
		errs = append(errs, "relay.cycle_timeout must be at least 1 second")
	} else if c.Relay.CycleTimeout > c.Relay.PollInterval {
		errs = append(errs, "relay.cycle_timeout must not exceed relay.poll_interval")
	}
	if c.Relay.DrainLimit < 1 || c.Relay.DrainLimit > maxDrainLimit {
		errs = append(errs, fmt.Sprintf("relay.drain_limit must be between 1 and %d", maxDrainLimit))
	}

	// Sorel validation
	if c.Sorel.BaseURL == "" && c.Sorel.DeviceID == "" {
		errs = append(errs, "sorel.base_url or sorel.device_id is required")
	}
	if c.Sorel.SessionID == "" && (c.Sorel.Username == "" || c.Sorel.Password == "") {
		errs = append(errs, "sorel.username and sorel.password are required (set SOLBOX_SOREL_USERNAME and SOLBOX_SOREL_PASSWORD)")
	}
	errs = append(errs, validateChannels(c.Sorel.Channels, c.Relay.Sink)...)

	// Sink-specific validation
	switch c.Relay.Sink {
	case SinkEnergieMon:
		if c.EnergieMon.BaseURL == "" {
			errs = append(errs, "energiemon.base_url is required")
		}
		if c.EnergieMon.Token == "" {
			errs = append(errs, "energiemon.token is required (set SOLBOX_ENERGIEMON_TOKEN)")
		}
	case SinkMQTT:
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		// QoS 0 has no broker acknowledgement, so a lost publish would look delivered.
		if c.MQTT.QoS < 1 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 1 or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		} else if problem := topicLevelProblem(strings.Trim(c.MQTT.TopicPrefix, "/")); problem != "" {
			errs = append(errs, fmt.Sprintf("mqtt.topic_prefix %q: %s", c.MQTT.TopicPrefix, problem))
		}
	case SinkInfluxDB:
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required")
		}
	}

	// Queue validation
	if c.Queue.Path == "" {
		errs = append(errs, "queue.path is required")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	output := strings.ToLower(c.Logging.Output)
	if (output == "file" || output == "both") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file or both")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateChannels checks the Sorel channel mapping.
func validateChannels(channels []ChannelConfig, sink string) []string {
	var errs []string

	if len(channels) == 0 {
		return append(errs, "sorel.channels must list at least one channel")
	}

	seen := make(map[string]bool, len(channels))
	for i, ch := range channels {
		if ch.Series == "" {
			errs = append(errs, fmt.Sprintf("sorel.channels[%d].series is required", i))
		} else if seen[ch.Series] {
			errs = append(errs, fmt.Sprintf("sorel.channels[%d].series %q is duplicated", i, ch.Series))
		} else if sink == SinkMQTT {
			if problem := topicLevelProblem(ch.Series); problem != "" {
				errs = append(errs, fmt.Sprintf("sorel.channels[%d].series %q cannot be an MQTT topic: %s", i, ch.Series, problem))
			}
		}
		seen[ch.Series] = true

		if ch.Kind != ChannelSensor && ch.Kind != ChannelRelay {
			errs = append(errs, fmt.Sprintf("sorel.channels[%d].kind must be sensor or relay", i))
		}
		if ch.ID == "" {
			errs = append(errs, fmt.Sprintf("sorel.channels[%d].id is required", i))
		}
	}

	return errs
}

// topicLevelProblem describes why key cannot follow the topic prefix, or
// returns "" when it is a valid concrete topic suffix.
func topicLevelProblem(key string) string {
	switch {
	case strings.ContainsAny(key, "+#"):
		return "wildcards + and # are not allowed"
	case strings.ContainsRune(key, 0):
		return "NUL is not allowed"
	case strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/"):
		return "leading or trailing / is not allowed"
	case strings.Contains(key, "//"):
		return "empty topic levels are not allowed"
	}
	return ""
}

// URL returns the controller base URL without a trailing slash.
func (s SorelConfig) URL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.sorel-connect.net", s.DeviceID)
}

// GetTimeout returns the per-request timeout as a Duration.
func (s SorelConfig) GetTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// SeriesKeys returns the configured series keys in channel order.
func (c *Config) SeriesKeys() []string {
	keys := make([]string, 0, len(c.Sorel.Channels))
	for _, ch := range c.Sorel.Channels {
		keys = append(keys, ch.Series)
	}
	return keys
}

// GetPollInterval returns the time between cycles as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Relay.PollInterval) * time.Second
}

// GetCycleTimeout returns the cycle watchdog deadline as a Duration.
func (c *Config) GetCycleTimeout() time.Duration {
	return time.Duration(c.Relay.CycleTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
