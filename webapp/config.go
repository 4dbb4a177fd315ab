package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/labstack/gommon/log"
)

const defaultSessionSecret = "powawa"

type Config struct {
	App     AppConfig     `toml:"app"`
	DB      DBConfig      `toml:"db"`
	Session SessionConfig `toml:"session"`
	Auth    AuthConfig    `toml:"auth"`
}

type AppConfig struct {
	Port           string   `toml:"port"`
	Debug          bool     `toml:"debug"`
	LogLevel       string   `toml:"log_level"`
	PublicPath     string   `toml:"public_path"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

type DBConfig struct {
	Driver       string `toml:"driver"`
	Host         string `toml:"host"`
	Port         string `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Name         string `toml:"name"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

type SessionConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	Table   string `toml:"table"`
	Secret  string `toml:"secret"`
	MaxAge  int    `toml:"max_age"`
}

type AuthConfig struct {
	BcryptCost int `toml:"bcrypt_cost"`
}

func getEnv(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return n
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Port:       "3000",
			LogLevel:   "info",
			PublicPath: "./public",
			TrustedProxies: []string{
				"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.1/32",
			},
		},
		DB: DBConfig{
			Driver:       driverMySQL,
			Host:         "127.0.0.1",
			Port:         "3306",
			User:         "portfolio",
			Password:     "portfolio",
			Name:         "music_portfolio",
			Path:         "music_portfolio.db",
			MaxOpenConns: 10,
		},
		Session: SessionConfig{
			Backend: sessionBackendMySQL,
			Dir:     "./sessions",
			Table:   "sessions_portfolio",
			Secret:  defaultSessionSecret,
			MaxAge:  86400,
		},
		Auth: AuthConfig{
			BcryptCost: defaultBcryptCost,
		},
	}
}

func loadConfig() (*Config, error) {
	return loadConfigFile(getEnv("PORTFOLIO_CONFIG", "config.toml"))
}

// loadConfigFile layers defaults, the TOML file (when it exists) and the environment.
func loadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("error decode config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.App.Port = getEnv("SERVER_APP_PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("PORTFOLIO_LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.PublicPath = getEnv("PORTFOLIO_PUBLIC_PATH", cfg.App.PublicPath)
	if v := os.Getenv("PORTFOLIO_DEBUG"); v != "" {
		cfg.App.Debug, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("PORTFOLIO_TRUSTED_PROXIES"); v != "" {
		cfg.App.TrustedProxies = strings.Split(v, ",")
	}

	cfg.DB.Driver = getEnv("PORTFOLIO_DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = getEnv("PORTFOLIO_DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnv("PORTFOLIO_DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("PORTFOLIO_DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("PORTFOLIO_DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("PORTFOLIO_DB_NAME", cfg.DB.Name)
	cfg.DB.Path = getEnv("PORTFOLIO_DB_PATH", cfg.DB.Path)
	cfg.DB.MaxOpenConns = getEnvInt("PORTFOLIO_DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)

	cfg.Session.Backend = getEnv("PORTFOLIO_SESSION_BACKEND", cfg.Session.Backend)
	cfg.Session.Dir = getEnv("PORTFOLIO_SESSION_DIR", cfg.Session.Dir)
	cfg.Session.Table = getEnv("PORTFOLIO_SESSION_TABLE", cfg.Session.Table)
	cfg.Session.Secret = getEnv("PORTFOLIO_SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.MaxAge = getEnvInt("PORTFOLIO_SESSION_MAX_AGE", cfg.Session.MaxAge)

	cfg.Auth.BcryptCost = getEnvInt("PORTFOLIO_BCRYPT_COST", cfg.Auth.BcryptCost)
}

func (cfg *Config) validate() error {
	switch cfg.DB.Driver {
	case driverMySQL, driverSQLite:
	default:
		return fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
	switch cfg.Session.Backend {
	case sessionBackendMySQL:
		if cfg.DB.Driver != driverMySQL {
			return fmt.Errorf("session backend %q requires the mysql db driver", cfg.Session.Backend)
		}
	case sessionBackendFilesystem:
		if cfg.Session.Dir == "" {
			return fmt.Errorf("session dir is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
	if cfg.Session.Secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if cfg.Session.MaxAge <= 0 {
		return fmt.Errorf("session max age must be positive, got %d", cfg.Session.MaxAge)
	}
	if cfg.Auth.BcryptCost < 4 || 31 < cfg.Auth.BcryptCost {
		return fmt.Errorf("bcrypt cost %d is out of range", cfg.Auth.BcryptCost)
	}
	if _, ok := parseLogLevel(cfg.App.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", cfg.App.LogLevel)
	}
	return nil
}

func parseLogLevel(s string) (log.Lvl, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	}
	return 0, false
}
