package server

import (
	"os"
	"syscall"
	"time"

	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

const (
	defaultMaxHeaderBytes  = 8 << 10
	defaultMaxBodyBytes    = 4 << 20
	defaultShutdownTimeout = 5 * time.Second
	defaultServerHeader    = "halt"
)

// limits bounds how much of one request the parser will buffer.
type limits struct {
	header int // header section, excluding the blank line
	body   int // decoded body
}

func (l limits) withDefaults() limits {
	if l.header <= 0 {
		l.header = defaultMaxHeaderBytes
	}
	if l.body <= 0 {
		l.body = defaultMaxBodyBytes
	}
	return l
}

type config struct {
	limits
	signals      []os.Signal
	stopTimeout  time.Duration
	serverHeader string
	logger       *zap.Logger
	engineOpts   []gnet.Option
}

func newConfig(opts []Option) config {
	cfg := config{
		signals:      []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		stopTimeout:  defaultShutdownTimeout,
		serverHeader: defaultServerHeader,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	return cfg
}

// Option configures a Server.
type Option func(*config)

// WithMaxHeaderBytes caps the header section; larger requests get 431.
func WithMaxHeaderBytes(n int) Option {
	return func(cfg *config) { cfg.header = n }
}

// WithMaxBodyBytes caps a request body. There is no fault response for an
// oversized body, so the connection is closed without one.
func WithMaxBodyBytes(n int) Option {
	return func(cfg *config) { cfg.body = n }
}

// WithShutdownSignals replaces the signals that stop the server. With no
// arguments the server ignores signals.
func WithShutdownSignals(signals ...os.Signal) Option {
	return func(cfg *config) { cfg.signals = signals }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.stopTimeout = d
		}
	}
}

// WithServerHeader sets the Server header on application responses. Fault
// responses never carry it.
func WithServerHeader(header string) Option {
	return func(cfg *config) {
		if header != "" {
			cfg.serverHeader = header
		}
	}
}

// WithLogger sets the logger shared by the server and gnet.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithGNetOption forwards opt to gnet.Run.
func WithGNetOption(opt gnet.Option) Option {
	return func(cfg *config) { cfg.engineOpts = append(cfg.engineOpts, opt) }
}
