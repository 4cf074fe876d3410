// Package config loads engine configuration from defaults, an
// optional YAML file, and environment variable overrides, in that
// order of precedence.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("conductor.yaml").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/witmind/conductor/types"
)

// Config is the full engine configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`
	Log    LogConfig    `yaml:"log" env:"LOG"`
}

// EngineConfig tunes workflow execution.
type EngineConfig struct {
	// MaxParallel bounds concurrent workers within a parallel group.
	// Zero means the group's own size.
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL"`
	// RetryBackoff is the base delay between retry attempts; it doubles
	// per retry. Zero disables backoff.
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	// RetryExhausted is the default escalation once a stage's retries
	// are spent: stop or skip.
	RetryExhausted string `yaml:"retry_exhausted" env:"RETRY_EXHAUSTED"`
	// DispatchRate caps agent invocations per second across the run.
	// Zero disables throttling.
	DispatchRate float64 `yaml:"dispatch_rate" env:"DISPATCH_RATE"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with file:line.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxParallel:    3,
			RetryBackoff:   2 * time.Second,
			RetryExhausted: "stop",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string
	if c.Engine.MaxParallel < 0 {
		errs = append(errs, "engine.max_parallel must be >= 0")
	}
	if c.Engine.RetryBackoff < 0 {
		errs = append(errs, "engine.retry_backoff must be >= 0")
	}
	switch c.Engine.RetryExhausted {
	case "", "stop", "skip":
	default:
		errs = append(errs, "engine.retry_exhausted must be stop or skip")
	}
	if c.Engine.DispatchRate < 0 {
		errs = append(errs, "engine.dispatch_rate must be >= 0")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be debug, info, warn, or error")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, "log.format must be json or console")
	}
	if len(errs) > 0 {
		return types.NewErrorf(types.ErrInvalidConfig,
			"config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds a zap logger from the log configuration.
func (c *LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, types.NewErrorf(types.ErrInvalidConfig, "invalid log level: %s", c.Level).WithCause(err)
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	zc.DisableCaller = !c.EnableCaller

	logger, err := zc.Build()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "build logger").WithCause(err)
	}
	return logger, nil
}

// Loader loads configuration with builder-style options.
// Precedence: defaults, then YAML file, then environment variables.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the CONDUCTOR env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CONDUCTOR"}
}

// WithConfigPath sets the YAML file path. A missing file is not an
// error; defaults and env vars still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewErrorf(types.ErrInvalidConfig, "read config file: %s", l.configPath).WithCause(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewErrorf(types.ErrInvalidConfig, "parse config file: %s", l.configPath).WithCause(err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return types.NewErrorf(types.ErrInvalidConfig, "invalid value for %s", envKey).WithCause(err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
