package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-fewshot/pkg/fewshot"
	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings shared by the CLI and the HTTP server.
// Credentials are not part of it; providers read them from the environment.
type Config struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	Concurrency   int           `yaml:"concurrency"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RetryBackoff  float64       `yaml:"retry_backoff"`
	TransientOnly bool          `yaml:"retry_transient_only"`
	Timeout       time.Duration `yaml:"timeout"`
	Addr          string        `yaml:"addr"`
	MaxUpload     int64         `yaml:"max_upload"`
}

// Default is Gemini 2.5 Flash with three attempts a minute apart and every
// request in flight at once.
func Default() Config {
	return Config{
		Provider:      "gemini",
		RetryAttempts: 3,
		RetryDelay:    60 * time.Second,
		Timeout:       10 * time.Minute,
		Addr:          ":8080",
		MaxUpload:     64 << 20,
	}
}

// Load layers the settings CLI and server start from: Default, then the YAML
// file named by FEWSHOT_CONFIG, then FEWSHOT_* variables. A .env file in the
// working directory is read first. Flags registered afterwards win.
func Load() (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	c := Default()
	if path := strings.TrimSpace(os.Getenv("FEWSHOT_CONFIG")); path != "" {
		var err error
		if c, err = LoadFile(path, c); err != nil {
			return c, err
		}
	}
	return FromEnv(c)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFile overlays the YAML settings in path on c. Keys not present keep
// their current value; unknown keys are an error. Durations are written the
// way time.ParseDuration reads them ("60s", "10m").
func LoadFile(path string, c Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	out := c
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// FromEnv overlays FEWSHOT_* variables on c. Unparsable values are reported
// and leave the field unchanged.
func FromEnv(c Config) (Config, error) {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid non-negative integer %q", key, v))
			return
		}
		*dst = n
	}
	seconds := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			*dst = d
			return
		}
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = time.Duration(sec) * time.Second
	}

	str("FEWSHOT_PROVIDER", &c.Provider)
	str("FEWSHOT_MODEL", &c.Model)
	str("FEWSHOT_ADDR", &c.Addr)
	num("FEWSHOT_CONCURRENCY", &c.Concurrency)
	num("FEWSHOT_RETRY_ATTEMPTS", &c.RetryAttempts)
	seconds("FEWSHOT_RETRY_DELAY", &c.RetryDelay)
	seconds("FEWSHOT_TIMEOUT", &c.Timeout)

	if v := strings.TrimSpace(os.Getenv("FEWSHOT_RETRY_BACKOFF")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("FEWSHOT_RETRY_BACKOFF: invalid multiplier %q", v))
		} else {
			c.RetryBackoff = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("FEWSHOT_RETRY_TRANSIENT_ONLY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FEWSHOT_RETRY_TRANSIENT_ONLY: invalid bool %q", v))
		} else {
			c.TransientOnly = b
		}
	}
	return c, errors.Join(errs...)
}

// RegisterFlags binds c's fields to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Provider, "provider", c.Provider, "Model provider: gemini|openai|anthropic|ollama|dummy")
	fs.StringVar(&c.Model, "model", c.Model, "Model ID (default depends on the provider)")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "Max in-flight model requests, 0 = all at once")
	fs.IntVar(&c.RetryAttempts, "retries", c.RetryAttempts, "Batch attempts before giving up")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "Wait between batch attempts")
	fs.Float64Var(&c.RetryBackoff, "retry-backoff", c.RetryBackoff, "Delay multiplier per attempt, <=1 keeps it fixed")
	fs.BoolVar(&c.TransientOnly, "retry-transient-only", c.TransientOnly, "Only retry rate limits, timeouts and 5xx")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Overall deadline of one classification run")
	fs.StringVar(&c.Addr, "addr", c.Addr, "Listen address in serve mode")
	fs.Int64Var(&c.MaxUpload, "max-upload", c.MaxUpload, "Max multipart upload size in bytes")
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Provider) == "":
		return errors.New("provider must not be empty")
	case c.Concurrency < 0:
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	case c.RetryAttempts < 1:
		return fmt.Errorf("retries must be >= 1, got %d", c.RetryAttempts)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry delay must be >= 0, got %s", c.RetryDelay)
	case c.MaxUpload <= 0:
		return fmt.Errorf("max upload must be > 0, got %d", c.MaxUpload)
	}
	return nil
}

// ModelID returns Model or the provider's default.
func (c Config) ModelID() string {
	if m := strings.TrimSpace(c.Model); m != "" {
		return m
	}
	return models.DefaultModel(c.Provider)
}

// RetryPolicy converts the retry settings.
func (c Config) RetryPolicy() fewshot.RetryPolicy {
	p := fewshot.RetryPolicy{
		MaxAttempts: c.RetryAttempts,
		Delay:       c.RetryDelay,
		Multiplier:  c.RetryBackoff,
	}
	if c.TransientOnly {
		p.Retryable = func(err error) bool {
			return models.IsTransient(err) || errors.Is(err, fewshot.ErrSchemaViolation)
		}
	}
	return p
}

// PipelineOptions returns the fewshot options implied by c.
func (c Config) PipelineOptions(logger *log.Logger) []fewshot.Option {
	opts := []fewshot.Option{
		fewshot.WithRetryPolicy(c.RetryPolicy()),
		fewshot.WithConcurrency(c.Concurrency),
	}
	if logger != nil {
		opts = append(opts, fewshot.WithLogger(logger))
	}
	return opts
}
