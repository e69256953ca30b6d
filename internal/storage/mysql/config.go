package mysql

import (
	"fmt"
	"time"
)

// Config holds the MySQL connection and pool settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // defaults to 3306
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`

	// Connection pool, see https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// GORM log level: "silent", "error", "warn", "info"
	LogLevel string `yaml:"log_level"`
}

// DSN builds the data source name:
// user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC
func (c *Config) DSN() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User,
		c.Password,
		c.Host,
		port,
		c.DBName,
	)
}
