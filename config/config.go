package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Geofence GeofenceConfig `yaml:"geofence"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString собирает DSN для pgx; ssl_mode по умолчанию disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	PositionsTopicName       string `yaml:"positions_topic_name"`
	GeofenceEventsTopicName  string `yaml:"geofence_events_topic_name"`
	ZoneSuggestionsTopicName string `yaml:"zone_suggestions_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type GeofenceConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// "postgres" (default) | "memory"
	StorageDriver string `yaml:"storage_driver"`

	RequestTimeoutSeconds      int `yaml:"request_timeout_seconds"`
	ZonesCacheTTLSeconds       int `yaml:"zones_cache_ttl_seconds"`
	OptimizeRateLimitPerMinute int `yaml:"optimize_rate_limit_per_minute"`

	WorkerRefreshIntervalSeconds int    `yaml:"worker_refresh_interval_seconds"`
	WorkerConcurrency            int    `yaml:"worker_concurrency"`
	WorkerDaysBack               int    `yaml:"worker_days_back"`
	WorkerCacheTTLSeconds        int    `yaml:"worker_cache_ttl_seconds"`
	WorkerHTTPAddr               string `yaml:"worker_http_addr"`
}

type LoggingConfig struct {
	// DEBUG | INFO | WARN | ERROR
	Level string `yaml:"level"`
	// Пустой путь: только stderr.
	FilePath   string `yaml:"file_path"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
