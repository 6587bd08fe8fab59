package forward

import "time"

// Config maps operation types to business module endpoints.
type Config struct {
	Endpoints        map[string]string `env:"SYNCQUEUE_ENDPOINTS"`
	SigningSecret    string            `env:"FORWARD_SIGNING_SECRET"`
	Timeout          time.Duration     `env:"FORWARD_TIMEOUT" envDefault:"10s"`
	BreakerFailures  int               `env:"FORWARD_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccesses int               `env:"FORWARD_BREAKER_SUCCESSES" envDefault:"2"`
	BreakerRecovery  time.Duration     `env:"FORWARD_BREAKER_RECOVERY" envDefault:"30s"`
	UserAgent        string            `env:"FORWARD_USER_AGENT" envDefault:"fieldsync-forwarder/1.0"`
}
