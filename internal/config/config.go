package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Geocode      GeocodeConfig      `mapstructure:"geocode"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	JWTSecret    string             `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StorageConfig configures where generated files (CSV, PDF) are written and
// how their public URLs are built.
type StorageConfig struct {
	LocalPath string `mapstructure:"local_path"`
	BaseURL   string `mapstructure:"base_url"`
}

// DispatchConfig bounds the background pool that delivers events.
type DispatchConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type GeocodeConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type CapabilitiesConfig struct {
	AIEndpoint string `mapstructure:"ai_endpoint"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "strata")
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("storage.local_path", "./files")
	viper.SetDefault("storage.base_url", "")
	viper.SetDefault("dispatch.workers", 4)
	viper.SetDefault("dispatch.queue_size", 256)
	viper.SetDefault("geocode.endpoint", "https://nominatim.openstreetmap.org/search")
	viper.SetDefault("jwt_secret", "changeme-secret")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Running on defaults plus env overrides is fine.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
