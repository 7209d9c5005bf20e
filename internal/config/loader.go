package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rpattn/entitysync/internal/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. ENTITYSYNC_SERVER_PORT.
const EnvPrefix = "ENTITYSYNC"

type Config struct {
	Server      ServerConfig
	Database    db.Config
	Storage     StorageConfig
	Sync        SyncConfig
	Transport   TransportConfig
	Blob        BlobConfig
	Diagnostics DiagnosticsConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type StorageConfig struct {
	Driver string
}

type SyncConfig struct {
	MaxRetries    int
	BatchSize     int
	Retention     time.Duration
	SweepSchedule string
	ActingUser    string
	CompanyID     int64
	OriginTag     string
	SchemasFile   string
}

type TransportConfig struct {
	Provider       string
	NATSURL        string
	Stream         string
	ConsumeSubject string
	ConsumerName   string
	Consume        bool
}

type BlobConfig struct {
	Driver       string
	Bucket       string
	Region       string
	Endpoint     string
	PathStyle    bool
	Prefix       string
	FetchTimeout time.Duration
}

type DiagnosticsConfig struct {
	BufferSize int
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.retention", 168*time.Hour)
	v.SetDefault("sync.sweep_schedule", "0 0 3 * * *")
	v.SetDefault("sync.acting_user", "sync")
	v.SetDefault("sync.company_id", 1)
	v.SetDefault("sync.origin_tag", "Odoo")
	v.SetDefault("sync.schemas_file", "")

	v.SetDefault("transport.provider", "log")
	v.SetDefault("transport.nats_url", "nats://localhost:4222")
	v.SetDefault("transport.stream", "SYNC")
	v.SetDefault("transport.consume_subject", "sync.inbound")
	v.SetDefault("transport.consumer_name", "entitysync")
	v.SetDefault("transport.consume", false)

	v.SetDefault("blob.driver", "memory")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.path_style", false)
	v.SetDefault("blob.prefix", "")
	v.SetDefault("blob.fetch_timeout", 10*time.Second)

	v.SetDefault("diagnostics.buffer_size", 200)
}

// Load reads config.yaml from configPath when present, then applies .env and
// ENTITYSYNC_* environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[CONFIG] WARN: failed to load .env: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("[CONFIG] no config.yaml found, using defaults and env vars")
	} else {
		log.Printf("[CONFIG] loaded %s", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
			CORSOrigins:  v.GetStringSlice("server.cors_origins"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Storage: StorageConfig{Driver: strings.ToLower(v.GetString("storage.driver"))},
		Sync: SyncConfig{
			MaxRetries:    v.GetInt("sync.max_retries"),
			BatchSize:     v.GetInt("sync.batch_size"),
			Retention:     v.GetDuration("sync.retention"),
			SweepSchedule: v.GetString("sync.sweep_schedule"),
			ActingUser:    v.GetString("sync.acting_user"),
			CompanyID:     v.GetInt64("sync.company_id"),
			OriginTag:     v.GetString("sync.origin_tag"),
			SchemasFile:   v.GetString("sync.schemas_file"),
		},
		Transport: TransportConfig{
			Provider:       strings.ToLower(v.GetString("transport.provider")),
			NATSURL:        v.GetString("transport.nats_url"),
			Stream:         v.GetString("transport.stream"),
			ConsumeSubject: v.GetString("transport.consume_subject"),
			ConsumerName:   v.GetString("transport.consumer_name"),
			Consume:        v.GetBool("transport.consume"),
		},
		Blob: BlobConfig{
			Driver:       strings.ToLower(v.GetString("blob.driver")),
			Bucket:       v.GetString("blob.bucket"),
			Region:       v.GetString("blob.region"),
			Endpoint:     v.GetString("blob.endpoint"),
			PathStyle:    v.GetBool("blob.path_style"),
			Prefix:       v.GetString("blob.prefix"),
			FetchTimeout: v.GetDuration("blob.fetch_timeout"),
		},
		Diagnostics: DiagnosticsConfig{BufferSize: v.GetInt("diagnostics.buffer_size")},
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Transport.Provider {
	case "nats", "memory", "log":
	default:
		return fmt.Errorf("unknown transport provider %q", c.Transport.Provider)
	}
	switch c.Blob.Driver {
	case "memory", "s3", "none":
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket is required for the s3 driver")
	}
	if c.Transport.Consume && c.Transport.Provider != "nats" {
		return fmt.Errorf("transport.consume requires the nats provider")
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	return nil
}
