package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete taskferry configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Queue      QueueConfig      `yaml:"queue"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Backends   BackendsConfig   `yaml:"backends"`

	// Path is the absolute file the config was loaded from. Empty for Defaults().
	Path string `yaml:"-"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Trace exports OpenTelemetry spans as log records.
	Trace bool `yaml:"trace"`
}

// QueueConfig locates the job queue and tunes how work is submitted to it.
type QueueConfig struct {
	Name           string   `yaml:"name"`
	Driver         string   `yaml:"driver"`
	DSN            string   `yaml:"dsn"`
	SleepTime      Duration `yaml:"sleep_time"`
	BatchSize      int      `yaml:"batch_size"`
	DefaultTimeout Duration `yaml:"default_timeout"`
}

// ExperimentConfig carries values passed through to worker functions.
type ExperimentConfig struct {
	// DBRef is handed to every statement batch so workers can find the target database.
	DBRef string `yaml:"db_ref"`
}

// BackendsConfig maps each task kind onto the function name workers resolve.
type BackendsConfig struct {
	RunStatements string `yaml:"run_statements"`
	MatrixBuilder string `yaml:"matrix_builder"`
	TrainTester   string `yaml:"train_tester"`
	Subsetter     string `yaml:"subsetter"`
}

// Duration is a time.Duration that decodes from strings such as "5s", "365d" or "2w".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return FormatDuration(time.Duration(d)), nil
}

// ChecksumManifest is the on-disk shape of a .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult reports the outcome of checking a config file against .checksums.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}
