package db

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the Postgres connection settings. Zero pool values fall back to
// the package defaults.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32

	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	PingTimeout     time.Duration
}

const (
	defaultMaxConns        = 5
	defaultMinConns        = 1
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

// DSN renders the keyword/value connection string used by pgxpool.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrationURL renders the URL form expected by the migration driver.
func (c Config) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connection owns the pool shared by the record, retry and dead-letter stores.
type Connection struct {
	Pool *pgxpool.Pool
}

// PoolConfig parses the DSN and applies the pool limits.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = orDefault(c.MaxConns, defaultMaxConns)
	poolConfig.MinConns = orDefault(c.MinConns, defaultMinConns)
	if poolConfig.MinConns > poolConfig.MaxConns {
		poolConfig.MinConns = poolConfig.MaxConns
	}
	poolConfig.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, defaultMaxConnIdleTime)
	poolConfig.HealthCheckPeriod = time.Minute
	return poolConfig, nil
}

func orDefault[T int32 | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}

// NewConnection opens the pool and fails fast when the server is unreachable.
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	poolConfig, err := config.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool for %s@%s/%s: %w", config.User, config.Host, config.DBName, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, orDefault(config.PingTimeout, defaultPingTimeout))
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database %s:%d: %w", config.Host, config.Port, err)
	}
	log.Printf("[DB] connected to %s:%d/%s (max_conns=%d)", config.Host, config.Port, config.DBName, poolConfig.MaxConns)

	return &Connection{Pool: pool}, nil
}

func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// DefaultConfig matches the docker-compose database used in development.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "entitysync",
		SSLMode:  "disable",
		MaxConns: 5,
	}
}
