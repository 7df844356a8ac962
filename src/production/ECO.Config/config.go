package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	RelayLocal = "local"
	RelayRedis = "redis"
)

// Config holds the API service configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Realtime RealtimeConfig `json:"realtime"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`

	// InternalAPISecret guards /internal routes used by the MQTT ingestor.
	// Empty disables them.
	InternalAPISecret string `json:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver     string `json:"driver"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	DBName     string `json:"db_name"`
	SSLMode    string `json:"ssl_mode"`
	MaxConns   int    `json:"max_conns"`
	MinConns   int    `json:"min_conns"`
	SQLitePath string `json:"sqlite_path"`
}

// RealtimeConfig controls snapshot windowing and websocket delivery
type RealtimeConfig struct {
	Window       int           `json:"window"`
	LabelTZ      string        `json:"label_tz"`
	SendBuffer   int           `json:"send_buffer"`
	PingInterval time.Duration `json:"ping_interval"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Relay        string        `json:"relay"` // local or redis
}

// RedisConfig holds the relay broker settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Size   int           `json:"size"`
	Window time.Duration `json:"window"`
}

// IngestorConfig holds configuration for the MQTT ingestor service
type IngestorConfig struct {
	Server            ServerConfig  `json:"server"`
	MQTT              MQTTConfig    `json:"mqtt"`
	Batch             BatchConfig   `json:"batch"`
	Logging           LoggingConfig `json:"logging"`
	ApiServiceURL     string        `json:"api_service_url"`
	InternalAPISecret string        `json:"-"`
}

// LoadIngestorConfig loads configuration for the MQTT ingestor service
func LoadIngestorConfig() (*IngestorConfig, error) {
	// .env is optional; plain environment variables work too
	_ = godotenv.Load()

	cfg := &IngestorConfig{
		Server: ServerConfig{
			Port:         getEnv("INGESTOR_PORT", "9003"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerHost:  getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  getInt("BROKER_PORT", 1883),
			BrokerUser:  getEnv("BROKER_USER", ""),
			BrokerPass:  getEnv("BROKER_PASS", ""),
			UseTLS:      getBool("BROKER_TLS", false),
			CACertPath:  getEnv("BROKER_CA_FILE", ""),
			Topic:       getEnv("MQTT_TOPIC", "ecotrack/readings/#"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "eco-ingestor"),
			SharedGroup: getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Batch: BatchConfig{
			Size:   getInt("BATCH_SIZE", 50),
			Window: getDuration("BATCH_WINDOW", time.Second),
		},
		Logging:           loadLogging(),
		ApiServiceURL:     getEnv("API_SERVICE_URL", "http://api-service:8000"),
		InternalAPISecret: getEnv("INTERNAL_API_SECRET", ""),
	}

	if cfg.ApiServiceURL == "" {
		return nil, fmt.Errorf("API_SERVICE_URL is required")
	}
	if cfg.InternalAPISecret == "" {
		return nil, fmt.Errorf("INTERNAL_API_SECRET is required")
	}
	if cfg.Batch.Size <= 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.Batch.Size)
	}

	return cfg, nil
}

// LoadApiConfig loads configuration for the API service
func LoadApiConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// websocket clients set per-frame deadlines, so the API server
		// runs without a WriteTimeout
		Server: ServerConfig{
			Port:        getEnv("PORT", "8000"),
			ReadTimeout: getDuration("READ_TIMEOUT", 30*time.Second),
			IdleTimeout: getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Host:       getEnv("POSTGRES_HOST", "localhost"),
			Port:       getInt("POSTGRES_PORT", 5432),
			User:       getEnv("POSTGRES_USER", ""),
			Password:   getEnv("POSTGRES_PASSWORD", ""),
			DBName:     getEnv("POSTGRES_DB", "ecotrack"),
			SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:   getInt("POSTGRES_MAX_CONNS", 25),
			MinConns:   getInt("POSTGRES_MIN_CONNS", 5),
			SQLitePath: getEnv("SQLITE_PATH", "ecotrack.db"),
		},
		Realtime: RealtimeConfig{
			Window:       getInt("REALTIME_WINDOW", 10),
			LabelTZ:      getEnv("REALTIME_LABEL_TZ", "UTC"),
			SendBuffer:   getInt("REALTIME_SEND_BUFFER", 16),
			PingInterval: getDuration("REALTIME_PING_INTERVAL", 25*time.Second),
			WriteTimeout: getDuration("REALTIME_WRITE_TIMEOUT", 5*time.Second),
			Relay:        strings.ToLower(getEnv("REALTIME_RELAY", RelayLocal)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "ecotrack:readings"),
		},
		Logging: loadLogging(),
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
		InternalAPISecret: getEnv("INTERNAL_API_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.User == "" {
			return fmt.Errorf("POSTGRES_USER is required when DB_DRIVER=postgres")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required when DB_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (expected postgres or sqlite)", c.Database.Driver)
	}

	if c.Realtime.Window <= 0 {
		return fmt.Errorf("REALTIME_WINDOW must be positive, got %d", c.Realtime.Window)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("REALTIME_SEND_BUFFER must be positive, got %d", c.Realtime.SendBuffer)
	}
	if _, err := time.LoadLocation(c.Realtime.LabelTZ); err != nil {
		return fmt.Errorf("invalid REALTIME_LABEL_TZ: %w", err)
	}

	switch c.Realtime.Relay {
	case RelayLocal:
	case RelayRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when REALTIME_RELAY=redis")
		}
	default:
		return fmt.Errorf("unsupported REALTIME_RELAY %q (expected local or redis)", c.Realtime.Relay)
	}

	if c.InternalAPISecret == "" {
		log.Println("WARNING: INTERNAL_API_SECRET is not set, /internal routes will reject all requests")
	}
	return nil
}

// LabelLocation returns the zone chart labels are rendered in
func (c *Config) LabelLocation() *time.Location {
	loc, err := time.LoadLocation(c.Realtime.LabelTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == DriverSQLite {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *IngestorConfig) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

func loadLogging() LoggingConfig {
	return LoggingConfig{
		Level:        getEnv("LOG_LEVEL", "info"),
		Format:       getEnv("LOG_FORMAT", "text"),
		Output:       getEnv("LOG_OUTPUT", "stdout"),
		EnableCaller: getBool("LOG_ENABLE_CALLER", false),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
