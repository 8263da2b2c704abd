package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/taskferry/internal/storage"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const day = 24 * time.Hour

// Defaults returns a configuration that runs against a local sqlite queue.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "taskferry",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Queue: QueueConfig{
			Name:           "default",
			Driver:         "sqlite",
			DSN:            "./taskferry.db",
			SleepTime:      Duration(5 * time.Second),
			BatchSize:      25,
			DefaultTimeout: Duration(365 * day),
		},
	}
}

// Load reads, interpolates and validates the configuration file at configPath.
// Fields left out of the file keep their Defaults() values. When a .checksums
// manifest sits next to the file it must match.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	integrity, err := Verify(absPath)
	if err != nil {
		return nil, err
	}
	if !integrity.Passed {
		return nil, fmt.Errorf("config integrity check failed: %s\n"+
			"If you edited the file intentionally, run: taskferry config lock",
			strings.Join(integrity.Errors, "; "))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.Path = absPath
	return cfg, nil
}

// Parse decodes YAML config bytes on top of Defaults() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(strings.NewReader(interpolateEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	cfg.Service.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Service.LogFormat))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	switch cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("service.log_level must be one of debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch cfg.Service.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Queue.Name) == "" {
		return fmt.Errorf("queue.name is required")
	}
	if _, err := storage.ParseDialect(cfg.Queue.Driver); err != nil {
		return fmt.Errorf("queue.driver: %w", err)
	}
	if strings.TrimSpace(cfg.Queue.DSN) == "" {
		return fmt.Errorf("queue.dsn is required")
	}
	if m := envVarPattern.FindString(cfg.Queue.DSN); m != "" {
		return fmt.Errorf("queue.dsn references unset environment variable %s", m)
	}
	if cfg.Queue.SleepTime <= 0 {
		return fmt.Errorf("queue.sleep_time must be positive")
	}
	if cfg.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive (got %d)", cfg.Queue.BatchSize)
	}
	if cfg.Queue.DefaultTimeout <= 0 {
		return fmt.Errorf("queue.default_timeout must be positive")
	}

	backends := map[string]string{
		"backends.run_statements": cfg.Backends.RunStatements,
		"backends.matrix_builder": cfg.Backends.MatrixBuilder,
		"backends.train_tester":   cfg.Backends.TrainTester,
		"backends.subsetter":      cfg.Backends.Subsetter,
	}
	for field, fn := range backends {
		if fn != "" && strings.ContainsAny(fn, " \t\n") {
			return fmt.Errorf("%s must not contain whitespace (got %q)", field, fn)
		}
	}
	return nil
}

// ParseDuration accepts Go duration syntax plus whole-number "d" (day) and
// "w" (week) suffixes, e.g. "365d" or "2w".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = day
	case strings.HasSuffix(s, "w"):
		unit = 7 * day
	}
	if unit != 0 {
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("invalid duration %q: out of range", s)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// FormatDuration renders whole days as "Nd" and everything else in Go syntax.
func FormatDuration(d time.Duration) string {
	if d > 0 && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
