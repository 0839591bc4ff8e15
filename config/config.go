package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	StorageBackendNone  = ""
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"

	MQBackendNone     = ""
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"
)

type Config struct {
	ServerPort      int           `toml:"server_port"`
	SecretKey       string        `toml:"secret_key"`
	Debug           bool          `toml:"debug"`
	AllowedHosts    []string      `toml:"allowed_hosts"`
	AccessTokenTTL  time.Duration `toml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `toml:"refresh_token_ttl"`
	PageSize        int           `toml:"page_size"`
	Database        DatabaseConfig
	Log             LogConfig
	Storage         StorageConfig
	MQ              MQConfig
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"name"`
	UseSSL   bool   `toml:"use_ssl"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `toml:"bucket"`
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

type MQConfig struct {
	Backend       string `toml:"backend"`
	EventsChannel string `toml:"events_channel"`
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `toml:"url"`
	QueueDurable    bool   `toml:"queue_durable"`
	QueueAutoDelete bool   `toml:"queue_auto_delete"`
	PrefetchCount   int    `toml:"prefetch_count"`
}

type PubSubConfig struct {
	ProjectID          string `toml:"project_id"`
	CredentialsFile    string `toml:"credentials_file"`
	SubscriptionSuffix string `toml:"subscription_suffix"`
}

// Defaults returns the configuration used when neither a file nor the
// environment provides a value.
func Defaults() Config {
	return Config{
		ServerPort:      8080,
		AllowedHosts:    []string{"localhost", "127.0.0.1"},
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		PageSize:        10,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "todo_user",
			Password: "todo_pass",
			DBName:   "todo_db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MQ: MQConfig{
			EventsChannel: "tasktracker.events",
			RabbitMQ: RabbitMQConfig{
				QueueDurable: true,
			},
			PubSub: PubSubConfig{
				SubscriptionSuffix: "-sub",
			},
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file
// and the environment, in increasing order of precedence. When path is
// empty, CONFIG_FILE is consulted.
func LoadConfig(path string) (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	cfg := Defaults()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that would prevent the server from running.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access token ttl must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("refresh token ttl must be positive"))
	}
	if c.PageSize < 1 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	switch c.Storage.Backend {
	case StorageBackendNone, StorageBackendMinio, StorageBackendGCS:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.MQ.Backend {
	case MQBackendNone, MQBackendRabbitMQ, MQBackendPubSub:
	default:
		errs = append(errs, fmt.Errorf("unknown mq backend %q", c.MQ.Backend))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if raw, ok := lookup(key); ok {
			value, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, raw))
				return
			}
			*dst = value
		}
	}
	setBool := func(key string, dst *bool) {
		if raw, ok := lookup(key); ok {
			*dst = parseBool(raw)
		}
	}
	setString := func(key string, dst *string) {
		if raw, ok := lookup(key); ok {
			*dst = raw
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if raw, ok := lookup(key); ok {
			value, err := time.ParseDuration(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
				return
			}
			*dst = value
		}
	}

	setInt("SERVER_PORT", &cfg.ServerPort)
	setString("JWT_SECRET", &cfg.SecretKey)
	setString("SECRET_KEY", &cfg.SecretKey)
	setBool("DEBUG", &cfg.Debug)
	if raw, ok := lookup("ALLOWED_HOSTS"); ok {
		cfg.AllowedHosts = splitList(raw)
	}
	setDuration("ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL)
	setDuration("REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL)
	setInt("PAGE_SIZE", &cfg.PageSize)

	setString("DB_HOST", &cfg.Database.Host)
	setInt("DB_PORT", &cfg.Database.Port)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.DBName)
	setBool("DB_USE_SSL", &cfg.Database.UseSSL)

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)

	setString("STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("MINIO_ENDPOINT", &cfg.Storage.Minio.Endpoint)
	setString("MINIO_ACCESS_KEY", &cfg.Storage.Minio.AccessKey)
	setString("MINIO_SECRET_KEY", &cfg.Storage.Minio.SecretKey)
	setString("MINIO_BUCKET", &cfg.Storage.Minio.Bucket)
	setBool("MINIO_USE_SSL", &cfg.Storage.Minio.UseSSL)
	setString("GCS_BUCKET", &cfg.Storage.GCS.Bucket)
	setString("GCS_PROJECT_ID", &cfg.Storage.GCS.ProjectID)
	setString("GCS_CREDENTIALS_FILE", &cfg.Storage.GCS.CredentialsFile)

	setString("MQ_BACKEND", &cfg.MQ.Backend)
	setString("EVENTS_CHANNEL", &cfg.MQ.EventsChannel)
	setString("RABBITMQ_URL", &cfg.MQ.RabbitMQ.URL)
	setBool("RABBITMQ_QUEUE_DURABLE", &cfg.MQ.RabbitMQ.QueueDurable)
	setBool("RABBITMQ_QUEUE_AUTO_DELETE", &cfg.MQ.RabbitMQ.QueueAutoDelete)
	setInt("RABBITMQ_PREFETCH_COUNT", &cfg.MQ.RabbitMQ.PrefetchCount)
	setString("PUBSUB_PROJECT_ID", &cfg.MQ.PubSub.ProjectID)
	setString("PUBSUB_CREDENTIALS_FILE", &cfg.MQ.PubSub.CredentialsFile)
	setString("PUBSUB_SUBSCRIPTION_SUFFIX", &cfg.MQ.PubSub.SubscriptionSuffix)

	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "t", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
