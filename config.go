package tandem

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the per-request timeout applied when none is configured.
const DefaultTimeout = 10 * time.Second

// Config holds the client-wide defaults. Values are read from environment
// variables with a caller-chosen prefix, e.g. TANDEM_BASE_URL and
// TANDEM_MAX_CONCURRENT=8, or from a YAML file.
type Config struct {
	BaseURL         string            `envconfig:"BASE_URL"         yaml:"base_url"`
	Timeout         time.Duration     `envconfig:"TIMEOUT"          yaml:"timeout"          default:"10s"`
	MaxConcurrent   int               `envconfig:"MAX_CONCURRENT"   yaml:"max_concurrent"   default:"5"`
	WithCredentials bool              `envconfig:"WITH_CREDENTIALS" yaml:"with_credentials"`
	Headers         map[string]string `envconfig:"HEADERS"          yaml:"headers"`

	// StrictStatus makes the context transport reject non-2xx responses too.
	StrictStatus bool `envconfig:"STRICT_STATUS" yaml:"strict_status"`

	// AdmissionRate paces transport starts per second; zero disables pacing.
	AdmissionRate  float64 `envconfig:"ADMISSION_RATE"  yaml:"admission_rate"`
	AdmissionBurst int     `envconfig:"ADMISSION_BURST" yaml:"admission_burst" default:"1"`
}

// DefaultConfig returns the defaults: a 10s timeout and five concurrent requests.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		MaxConcurrent:  DefaultMaxConcurrent,
		AdmissionBurst: 1,
	}
}

// LoadConfigFromEnv populates a Config from environment variables carrying prefix.
func LoadConfigFromEnv(prefix string) (Config, error) {
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return c, c.Validate()
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return c, c.Validate()
}

// Validate reports every invalid field in one Validation error.
func (c Config) Validate() error {
	var problems []string

	if c.MaxConcurrent <= 0 {
		problems = append(problems, "maxConcurrent must be a positive integer")
	}
	if c.Timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if c.BaseURL != "" && !hasScheme(c.BaseURL) {
		problems = append(problems, "baseURL must include a scheme")
	}
	if c.AdmissionRate < 0 {
		problems = append(problems, "admissionRate must be non-negative")
	}

	if len(problems) > 0 {
		return validationError(problems)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
