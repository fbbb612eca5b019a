package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	MQTTBroker      string
	MQTTPort        int
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopic       string
	MQTTUseTLS      bool
	DBPath          string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Gate and dwell tuning.
	WindWindow  time.Duration
	SteadyDwell time.Duration

	// Grid resolution.
	SpeedBucketKnots   float64
	AngleBucketDegrees float64

	// Optional shore uplink; enabled when brokers are set.
	UplinkBrokers []string
	UplinkTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	port, err := parsePositiveInt("MQTT_PORT", 1883)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	windWindow, err := parseDuration("WIND_WINDOW", 30*time.Second)
	if err != nil {
		return nil, err
	}
	steadyDwell, err := parseDuration("STEADY_DWELL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	speedBucket, err := parsePositiveFloat("SPEED_BUCKET_KNOTS", 2.0)
	if err != nil {
		return nil, err
	}
	angleBucket, err := parsePositiveFloat("ANGLE_BUCKET_DEGREES", 10.0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MQTTBroker:      envOrDefault("MQTT_BROKER", "localhost"),
		MQTTPort:        port,
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:       envOrDefault("MQTT_TOPIC", "instruments/samples"),
		MQTTUseTLS:      os.Getenv("MQTT_TLS") == "true",
		DBPath:          envOrDefault("DB_PATH", "polar.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WindWindow:         windWindow,
		SteadyDwell:        steadyDwell,
		SpeedBucketKnots:   speedBucket,
		AngleBucketDegrees: angleBucket,

		UplinkBrokers: parseBrokers(os.Getenv("UPLINK_BROKERS")),
		UplinkTopic:   envOrDefault("UPLINK_TOPIC", "polar-observations"),
	}

	if cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is required")
	}
	if cfg.MQTTTopic == "" {
		return nil, errors.New("MQTT_TOPIC is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if len(cfg.UplinkBrokers) > 0 && cfg.UplinkTopic == "" {
		return nil, errors.New("UPLINK_BROKERS is set but UPLINK_TOPIC is empty")
	}

	return cfg, nil
}

// UplinkEnabled reports whether the shore uplink should be wired.
func (c *Config) UplinkEnabled() bool {
	return len(c.UplinkBrokers) > 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
