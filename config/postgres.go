package config

import (
	"fmt"
	"time"
)

// PostgresConfig defines the connection to the alert journal database.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	// SSM parameter names used instead of Host/User/Password in prod.
	HostParameter     string `mapstructure:"host_parameter"`
	UserParameter     string `mapstructure:"user_parameter"`
	PasswordParameter string `mapstructure:"password_parameter"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// Retention bounds how long alert records are kept; 0 keeps them forever.
	Retention time.Duration `mapstructure:"retention"`
}

func (cfg *PostgresConfig) DSN(env string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		if cfg.HostParameter != "" {
			host = getParameterStoreValue(cfg.HostParameter, true)
		}
		if cfg.UserParameter != "" {
			user = getParameterStoreValue(cfg.UserParameter, true)
		}
		if cfg.PasswordParameter != "" {
			password = getParameterStoreValue(cfg.PasswordParameter, true)
		}
	}
	return cfg.dsn(host, user, password, cfg.DBName)
}

// AdminDSN points at the server's default "postgres" database, used to create DBName.
func (cfg *PostgresConfig) AdminDSN() string {
	return cfg.dsn(cfg.Host, cfg.User, cfg.Password, "postgres")
}

func (cfg *PostgresConfig) dsn(host, user, password, dbname string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbname, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn
}
