package syncqueue_test

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

func TestConfig_EnvDefaultsMatchDefaultConfig(t *testing.T) {
	t.Parallel()

	var cfg syncqueue.Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))

	assert.Equal(t, syncqueue.DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_FromEnvironment(t *testing.T) {
	t.Parallel()

	var cfg syncqueue.Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
		"SYNCQUEUE_WORKERS":              "16",
		"SYNCQUEUE_HANDLER_TIMEOUT":      "10s",
		"SYNCQUEUE_MAX_RETRIES_BY_TYPE":  "payment:1,stock_adjust:5",
		"SYNCQUEUE_STRICT_PAYLOAD_MATCH": "true",
	}}))

	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.HandlerTimeout)
	assert.True(t, cfg.StrictPayload)
	assert.Equal(t, 1, cfg.MaxRetriesFor(syncqueue.TypePayment))
	assert.Equal(t, 5, cfg.MaxRetriesFor(syncqueue.TypeStockAdjust))
	assert.Equal(t, 3, cfg.MaxRetriesFor(syncqueue.TypeSale))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *syncqueue.Config)
		wantErr string
	}{
		{"no workers", func(c *syncqueue.Config) { c.Workers = 0 }, "SYNCQUEUE_WORKERS"},
		{"liveness shorter than handler timeout", func(c *syncqueue.Config) {
			c.LivenessTimeout = c.HandlerTimeout
		}, "SYNCQUEUE_LIVENESS_TIMEOUT"},
		{"negative retries", func(c *syncqueue.Config) { c.MaxRetries = -1 }, "SYNCQUEUE_MAX_RETRIES"},
		{"negative per type retries", func(c *syncqueue.Config) {
			c.MaxRetriesByType = map[string]int{"sale": -1}
		}, `"sale"`},
		{"jitter out of range", func(c *syncqueue.Config) { c.BackoffJitter = 1 }, "SYNCQUEUE_BACKOFF_JITTER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := syncqueue.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_Backoff(t *testing.T) {
	t.Parallel()

	b := syncqueue.DefaultConfig().Backoff()
	assert.Equal(t, 5*time.Second, b.Base)
	assert.Equal(t, 10*time.Minute, b.Cap)
	assert.InDelta(t, 0.2, b.JitterFactor, 1e-9)
}

func TestConfig_RegisterOptions(t *testing.T) {
	t.Parallel()

	cfg := syncqueue.DefaultConfig()
	cfg.UnorderedTypes = []string{"social_payment"}

	r := syncqueue.NewRegistry(cfg.MaxRetries)
	for _, typ := range syncqueue.BuiltinTypes() {
		require.NoError(t, r.Register(typ, okHandler(), cfg.RegisterOptions(typ)...))
	}

	payment, err := r.Policy(syncqueue.TypePayment)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.Policy{MaxRetries: 2, Ordered: true}, payment)

	social, err := r.Policy(syncqueue.TypeSocialPayment)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.Policy{MaxRetries: 3, Ordered: false}, social)
}
