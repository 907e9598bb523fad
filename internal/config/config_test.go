package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
)

const sampleConfig = `
log:
  level: DEBUG
  colors: true
aws:
  region: ${TEST_AWS_REGION:eu-west-1}
  endpoint: ${TEST_AWS_ENDPOINT}
reconciler:
  max_retries: 5
  poll_delay: 2s
trigger:
  enabled: true
  queue_size: 10
targets:
  - name: web
    kind: ec2-instance
    id: i-0123456789
  - name: api
    kind: ecs-service
    id: api
    cluster: main
    capacity:
      desired: 2
    ttl: 0
    poll_delay: 500ms
    conditions:
      stop:
        success: desired == 0
`

func TestLoad(t *testing.T) {
	t.Setenv("TEST_AWS_ENDPOINT", "http://localhost:4566")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.GetLevel())
	assert.True(t, cfg.Log.Colors)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "http://localhost:4566", cfg.AWS.Endpoint)

	// Explicit values win, zero values take defaults.
	assert.Equal(t, 5, cfg.Reconciler.MaxRetries)
	assert.Equal(t, reconcile.DefaultTTL, cfg.Reconciler.TTL)
	assert.Equal(t, 2*time.Second, cfg.Reconciler.PollDelay.Duration())
	assert.Equal(t, 10.0, cfg.Reconciler.RateLimitRPS)
	assert.Equal(t, 4, cfg.Reconciler.Workers)

	assert.Equal(t, 10, cfg.Trigger.GetQueueSize())
	assert.Equal(t, 4, cfg.Trigger.GetWorkers())
	assert.Equal(t, 8080, cfg.Trigger.Port)
	assert.Equal(t, 9090, cfg.Healthcheck.Port)
	assert.Equal(t, 30, cfg.Ledger.RetentionDays)
	assert.Equal(t, "./resourcectl.sqlite", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())

	require.Len(t, cfg.Targets, 2)
}

func TestTargetConversion(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	api, ok := cfg.FindTarget("api")
	require.True(t, ok)
	assert.Equal(t, resource.KindECSService, api.Kind)
	assert.Equal(t, "main", api.Cluster)
	assert.Equal(t, int32(2), api.Capacity.Desired)
	assert.Nil(t, api.MaxRetries)
	require.NotNil(t, api.TTL)
	assert.Equal(t, 0, *api.TTL)
	require.NotNil(t, api.PollDelay)
	assert.Equal(t, 500*time.Millisecond, *api.PollDelay)
	assert.Equal(t, "desired == 0", api.Conditions[resource.ActionStop].Success)

	_, ok = cfg.FindTarget("missing")
	assert.False(t, ok)

	targets := cfg.ResourceTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, "web", targets[0].Name)
}

func TestReconcilerDefaults(t *testing.T) {
	cfg, err := Parse([]byte("reconciler:\n  ttl: 9\n"))
	require.NoError(t, err)

	d := cfg.Reconciler.Defaults()
	assert.Equal(t, reconcile.DefaultMaxRetries, d.MaxRetries)
	assert.Equal(t, 9, d.TTL)
	assert.Equal(t, reconcile.DefaultPollDelay, d.PollDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "duplicate names",
			yaml: `
targets:
  - {name: a, kind: ec2-instance, id: i-1}
  - {name: a, kind: ec2-instance, id: i-2}
`,
			wantErr: "duplicate name",
		},
		{
			name: "unknown kind",
			yaml: `
targets:
  - {name: a, kind: lambda, id: f}
`,
			wantErr: "unknown kind",
		},
		{
			name: "ecs without cluster",
			yaml: `
targets:
  - {name: a, kind: ecs-service, id: s, capacity: {desired: 1}}
`,
			wantErr: "cluster is required",
		},
		{
			name: "bad condition",
			yaml: `
targets:
  - name: a
    kind: ec2-instance
    id: i-1
    conditions:
      start:
        ready: "status =="
`,
			wantErr: "start condition",
		},
		{
			name: "unknown condition action",
			yaml: `
targets:
  - name: a
    kind: ec2-instance
    id: i-1
    conditions:
      reboot:
        ready: "true"
`,
			wantErr: "unknown action",
		},
		{
			name: "negative target ttl",
			yaml: `
targets:
  - {name: a, kind: ec2-instance, id: i-1, ttl: -1}
`,
			wantErr: "ttl must not be negative",
		},
		{
			name:    "negative max retries",
			yaml:    "reconciler:\n  max_retries: -2\n",
			wantErr: "max_retries must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDurationInvalid(t *testing.T) {
	_, err := Parse([]byte("shutdown_timeout: soon\n"))
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_SET}", "value"},
		{"${TEST_SET:fallback}", "value"},
		{"${TEST_UNSET_VAR:fallback}", "fallback"},
		{"${TEST_UNSET_VAR}", ""},
		{"prefix-${TEST_SET}-suffix", "prefix-value-suffix"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), tt.in)
	}
}
