// Package config loads service configuration from command-line flags,
// environment variables and a .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	ModeServer = "server"
	ModeWorker = "worker"
	ModeAll    = "all"

	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	Worker  WorkerConfig
}

type AppConfig struct {
	Environment string
	// Mode selects what the process runs: server, worker or all.
	Mode string
	// Seed loads the demo dataset into an empty store at startup.
	Seed bool
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Backend    string
	BadgerPath string
	MongoURL   string
	MongoDB    string
}

type RedisConfig struct {
	// URL is host:port. Empty disables the cache and timeline fan-out.
	URL      string
	CacheTTL time.Duration
}

type WorkerConfig struct {
	Concurrency int
}

// Load reads configuration with precedence:
// 1. Command-line flags in args.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("microblog", flag.ContinueOnError)
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	mode := fs.String("mode", "", "What to run: server, worker or all")
	seed := fs.String("seed", "", "Load demo data into an empty store (default: false)")
	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	backend := fs.String("storage", "", "Storage backend: memory, badger or mongo")
	badgerPath := fs.String("badger-path", "", "Badger data directory")
	mongoURL := fs.String("mongo-url", "", "MongoDB connection string")
	mongoDB := fs.String("mongo-db", "", "MongoDB database name")
	redisURL := fs.String("redis-url", "", "Redis host:port")
	cacheTTL := fs.String("cache-ttl", "", "Cache entry lifetime (default: 1h)")
	concurrency := fs.String("worker-concurrency", "", "Worker task concurrency (default: 10)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			Mode:        strings.ToLower(getConfigValue(*mode, "APP_MODE", ModeAll)),
			Seed:        getBoolConfigValue(*seed, "SEED", false),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*port, "SERVER_PORT", "8080"),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(getConfigValue(*backend, "STORAGE_BACKEND", BackendMemory)),
			BadgerPath: getConfigValue(*badgerPath, "BADGER_PATH", "data/badger"),
			MongoURL:   getConfigValue(*mongoURL, "MONGO_URL", ""),
			MongoDB:    getConfigValue(*mongoDB, "MONGO_DBNAME", "microblog"),
		},
		Redis: RedisConfig{
			URL: getConfigValue(*redisURL, "REDIS_URL", ""),
		},
		Worker: WorkerConfig{
			Concurrency: getIntConfigValue(*concurrency, "WORKER_CONCURRENCY", 10),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Redis.CacheTTL, err = getDurationConfigValue(*cacheTTL, "CACHE_TTL", "1h"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.App.Mode {
	case ModeServer, ModeWorker, ModeAll:
	default:
		return fmt.Errorf("invalid app mode: %s (must be server, worker, or all)", c.App.Mode)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Storage.BadgerPath == "" {
			return errors.New("BADGER_PATH is required for the badger backend")
		}
	case BackendMongo:
		if c.Storage.MongoURL == "" {
			return errors.New("MONGO_URL is required for the mongo backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, badger, or mongo)", c.Storage.Backend)
	}

	if c.App.Mode == ModeWorker && c.Redis.URL == "" {
		return errors.New("REDIS_URL is required in worker mode")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
