package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vibe-io/cdk-extensions-sub001/internal/expr"
	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Database        DatabaseConfig    `yaml:"database"`
	AWS             AWSConfig         `yaml:"aws"`
	Reconciler      ReconcilerConfig  `yaml:"reconciler"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Trigger         TriggerConfig     `yaml:"trigger"`
	Tracing         TracingConfig     `yaml:"tracing"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
	Targets         []TargetConfig    `yaml:"targets"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AWSConfig contains AWS client settings. Empty fields fall back to the
// SDK's default credential and region chain.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	Endpoint        string `yaml:"endpoint"` // e.g. http://localhost:4566 for LocalStack
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// Options converts the section to client options.
func (c AWSConfig) Options() resource.AWSOptions {
	return resource.AWSOptions{
		Region:          c.Region,
		Profile:         c.Profile,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// ReconcilerConfig contains default run bounds and API pacing
type ReconcilerConfig struct {
	MaxRetries   int      `yaml:"max_retries"`    // Writes per run (default: 3)
	TTL          int      `yaml:"ttl"`            // Wait observations without progress (default: 120)
	PollDelay    Duration `yaml:"poll_delay"`     // Delay between polls (default: 15s)
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Shared AWS API rate (default: 10)
	Workers      int      `yaml:"workers"`        // Concurrent runs (default: 4)
}

// Defaults returns the controller bounds targets inherit.
func (c ReconcilerConfig) Defaults() reconcile.Config {
	return reconcile.Config{
		MaxRetries: c.MaxRetries,
		TTL:        c.TTL,
		PollDelay:  c.PollDelay.Duration(),
	}
}

// LedgerConfig contains run ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// TriggerConfig contains trigger API settings
type TriggerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Workers   int    `yaml:"workers"`    // Number of dispatch workers (default: 4)
	QueueSize int    `yaml:"queue_size"` // Pending trigger queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *TriggerConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *TriggerConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	Pretty  bool `yaml:"pretty"` // Indent exported spans
}

// TargetConfig describes one managed resource
type TargetConfig struct {
	Name       string                      `yaml:"name"`
	Kind       string                      `yaml:"kind"`
	ID         string                      `yaml:"id"`
	Cluster    string                      `yaml:"cluster"`
	Capacity   CapacityConfig              `yaml:"capacity"`
	Conditions map[string]ConditionsConfig `yaml:"conditions"` // Keyed by action

	// Unset bounds inherit from the reconciler section.
	MaxRetries *int      `yaml:"max_retries"`
	TTL        *int      `yaml:"ttl"`
	PollDelay  *Duration `yaml:"poll_delay"`
}

// CapacityConfig is the size a scalable target is started with
type CapacityConfig struct {
	Min     int32 `yaml:"min"`
	Max     int32 `yaml:"max"`
	Desired int32 `yaml:"desired"`
}

// ConditionsConfig holds Lua predicate overrides
type ConditionsConfig struct {
	Wait    string `yaml:"wait"`
	Ready   string `yaml:"ready"`
	Success string `yaml:"success"`
}

// Target converts the entry to a resource target.
func (t TargetConfig) Target() resource.Target {
	target := resource.Target{
		Name:    t.Name,
		Kind:    resource.Kind(t.Kind),
		ID:      t.ID,
		Cluster: t.Cluster,
		Capacity: resource.Capacity{
			Min:     t.Capacity.Min,
			Max:     t.Capacity.Max,
			Desired: t.Capacity.Desired,
		},
		MaxRetries: t.MaxRetries,
		TTL:        t.TTL,
	}
	if t.PollDelay != nil {
		d := t.PollDelay.Duration()
		target.PollDelay = &d
	}
	if len(t.Conditions) > 0 {
		target.Conditions = make(map[resource.Action]resource.Conditions, len(t.Conditions))
		for action, c := range t.Conditions {
			target.Conditions[resource.Action(action)] = resource.Conditions{
				Wait:    c.Wait,
				Ready:   c.Ready,
				Success: c.Success,
			}
		}
	}
	return target
}

// ResourceTargets returns all configured targets in file order.
func (c *Config) ResourceTargets() []resource.Target {
	targets := make([]resource.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, t.Target())
	}
	return targets
}

// FindTarget looks up a target by name.
func (c *Config) FindTarget(name string) (resource.Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t.Target(), true
		}
	}
	return resource.Target{}, false
}

// Validate checks targets and bounds. Lua conditions are compiled here so
// syntax errors surface at startup.
func (c *Config) Validate() error {
	if c.Reconciler.MaxRetries < 0 {
		return fmt.Errorf("reconciler.max_retries must not be negative")
	}
	if c.Reconciler.TTL < 0 {
		return fmt.Errorf("reconciler.ttl must not be negative")
	}
	if c.Reconciler.PollDelay < 0 {
		return fmt.Errorf("reconciler.poll_delay must not be negative")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, tc := range c.Targets {
		if seen[tc.Name] {
			return fmt.Errorf("targets[%d]: duplicate name %q", i, tc.Name)
		}
		seen[tc.Name] = true

		t := tc.Target()
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if tc.MaxRetries != nil && *tc.MaxRetries < 0 {
			return fmt.Errorf("target %s: max_retries must not be negative", tc.Name)
		}
		if tc.TTL != nil && *tc.TTL < 0 {
			return fmt.Errorf("target %s: ttl must not be negative", tc.Name)
		}
		for action, cond := range tc.Conditions {
			for _, src := range []string{cond.Wait, cond.Ready, cond.Success} {
				if src == "" {
					continue
				}
				if _, err := expr.Compile(src); err != nil {
					return fmt.Errorf("target %s: %s condition: %w", tc.Name, action, err)
				}
			}
		}
	}
	return nil
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads, parses and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./resourcectl.sqlite"
	}

	// Reconciler defaults
	if c.Reconciler.MaxRetries == 0 {
		c.Reconciler.MaxRetries = reconcile.DefaultMaxRetries
	}
	if c.Reconciler.TTL == 0 {
		c.Reconciler.TTL = reconcile.DefaultTTL
	}
	if c.Reconciler.PollDelay == 0 {
		c.Reconciler.PollDelay = Duration(reconcile.DefaultPollDelay)
	}
	if c.Reconciler.RateLimitRPS == 0 {
		c.Reconciler.RateLimitRPS = 10.0 // 10 requests per second
	}
	if c.Reconciler.Workers <= 0 {
		c.Reconciler.Workers = 4
	}

	// Ledger defaults
	if c.Ledger.CleanupInterval == 0 {
		c.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if c.Ledger.RetentionDays == 0 {
		c.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if c.Healthcheck.Port == 0 {
		c.Healthcheck.Port = 9090
	}
	if c.Healthcheck.Host == "" {
		c.Healthcheck.Host = "0.0.0.0"
	}

	// Trigger defaults
	if c.Trigger.Port == 0 {
		c.Trigger.Port = 8080
	}
	if c.Trigger.Host == "" {
		c.Trigger.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(5 * time.Second)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
