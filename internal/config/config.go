package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-level configuration, loaded from the environment
// once at startup. Billing policy is deliberately not here: it lives in
// the billing_settings table and is re-read every cycle.
type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	OpsEnabled string
	OpsPort    string

	ControlPlaneURL     string
	ControlPlaneToken   string
	ControlPlaneTimeout time.Duration

	QueueLimit       int
	QueueWaitTimeout time.Duration

	BreakerFailures uint32
	BreakerCooldown time.Duration

	LivenessCacheTTL time.Duration

	AFKCoinsPerMinute int64
}

// New loads and validates configuration from environment variables.
// NATS is optional: without it the engine runs with a no-op dispatcher
// and no rewards worker. The ops HTTP server is optional the same way.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("PANELBILL_POSTGRES_USER"),
		DBPass:  os.Getenv("PANELBILL_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("PANELBILL_POSTGRES_HOST"),
		DBPort:  os.Getenv("PANELBILL_POSTGRES_PORT"),
		DBName:  os.Getenv("PANELBILL_POSTGRES_DB"),
		SSLMode: os.Getenv("PANELBILL_POSTGRES_SSLMODE"),

		RedisHost: os.Getenv("PANELBILL_REDIS_HOST"),
		RedisPort: os.Getenv("PANELBILL_REDIS_PORT"),

		NatsHost: os.Getenv("PANELBILL_NATS_HOST"),
		NatsPort: os.Getenv("PANELBILL_NATS_PORT"),

		OpsEnabled: os.Getenv("PANELBILL_OPS_ENABLED"),
		OpsPort:    os.Getenv("PANELBILL_OPS_PORT"),

		ControlPlaneURL:     os.Getenv("PANELBILL_CONTROLPLANE_URL"),
		ControlPlaneToken:   os.Getenv("PANELBILL_CONTROLPLANE_TOKEN"),
		ControlPlaneTimeout: getEnvDuration("PANELBILL_CONTROLPLANE_TIMEOUT_SECONDS", 15*time.Second),

		QueueLimit:       getEnvInt("PANELBILL_QUEUE_LIMIT", 5),
		QueueWaitTimeout: getEnvDuration("PANELBILL_QUEUE_WAIT_SECONDS", 30*time.Second),

		BreakerFailures: uint32(getEnvInt("PANELBILL_BREAKER_FAILURES", 5)),
		BreakerCooldown: getEnvDuration("PANELBILL_BREAKER_COOLDOWN_SECONDS", 60*time.Second),

		LivenessCacheTTL: getEnvDuration("PANELBILL_LIVENESS_CACHE_SECONDS", 30*time.Second),

		AFKCoinsPerMinute: int64(getEnvInt("PANELBILL_AFK_COINS_PER_MINUTE", 1)),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: PANELBILL_POSTGRES_USER/HOST/DB/SSLMODE")
	}
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: PANELBILL_REDIS_HOST/PORT")
	}
	if cfg.ControlPlaneURL == "" || cfg.ControlPlaneToken == "" {
		return nil, fmt.Errorf("missing required env for control plane: PANELBILL_CONTROLPLANE_URL/TOKEN")
	}
	if cfg.QueueLimit < 1 {
		return nil, fmt.Errorf("PANELBILL_QUEUE_LIMIT must be at least 1")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS URL, or an error when NATS is not configured;
// callers skip the bus and the worker in that case.
func (c *Config) NatsAddr() (string, error) {
	if c.NatsHost == "" || c.NatsPort == "" {
		return "", fmt.Errorf("NATS is not configured (PANELBILL_NATS_HOST/PORT)")
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort), nil
}

// OpsAddr returns the ops HTTP listen address if enabled.
func (c *Config) OpsAddr() (string, error) {
	if c.OpsEnabled != "true" {
		return "", fmt.Errorf("ops HTTP server is disabled (PANELBILL_OPS_ENABLED != true)")
	}
	if c.OpsPort == "" {
		return "", fmt.Errorf("PANELBILL_OPS_PORT is required when PANELBILL_OPS_ENABLED=true")
	}
	return ":" + c.OpsPort, nil
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	seconds := getEnvInt(key, -1)
	if seconds < 0 {
		return defaultVal
	}
	return time.Duration(seconds) * time.Second
}
