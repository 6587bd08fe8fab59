package httpserver

import (
	"log/slog"
	"net"
	"time"
)

// Config is the env-loaded part of the server settings. Zero values keep the
// defaults of New.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// merge copies the non-zero fields of src into c.
func (c *Config) merge(src Config) {
	if src.Addr != "" {
		c.Addr = src.Addr
	}
	if src.ReadTimeout > 0 {
		c.ReadTimeout = src.ReadTimeout
	}
	if src.WriteTimeout > 0 {
		c.WriteTimeout = src.WriteTimeout
	}
	if src.IdleTimeout > 0 {
		c.IdleTimeout = src.IdleTimeout
	}
	if src.ShutdownTimeout > 0 {
		c.ShutdownTimeout = src.ShutdownTimeout
	}
}

type settings struct {
	Config
	listener net.Listener
	logger   *slog.Logger
	onListen []func(net.Addr)
}

// Option configures a Server.
type Option func(*settings)

// NewFromConfig is New with cfg applied before opts.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	return New(append([]Option{func(s *settings) { s.merge(cfg) }}, opts...)...)
}

func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty address")
	}
	return func(s *settings) { s.Addr = addr }
}

// WithTimeouts sets the read, write and idle timeouts of the underlying
// http.Server. Zero leaves a timeout unchanged.
func WithTimeouts(read, write, idle time.Duration) Option {
	if read < 0 || write < 0 || idle < 0 {
		panic("httpserver: negative timeout")
	}
	return func(s *settings) {
		s.merge(Config{ReadTimeout: read, WriteTimeout: write, IdleTimeout: idle})
	}
}

// WithShutdownTimeout bounds the graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: shutdown timeout must be positive")
	}
	return func(s *settings) { s.ShutdownTimeout = d }
}

// WithListener serves on an already bound listener; the address is ignored.
func WithListener(l net.Listener) Option {
	if l == nil {
		panic("httpserver: nil listener")
	}
	return func(s *settings) { s.listener = l }
}

// WithLogger sets the logger. Without it logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithOnListen registers fn to receive the bound address once the server
// accepts connections. Tests bind ":0" and read the port from here.
func WithOnListen(fn func(net.Addr)) Option {
	if fn == nil {
		panic("httpserver: nil listen callback")
	}
	return func(s *settings) { s.onListen = append(s.onListen, fn) }
}
