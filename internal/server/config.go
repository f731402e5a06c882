package server

import (
	"net/http"
	"strconv"
	"time"

	"market-chat/internal/chat"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config defines fields used for configuring Server instance
type config struct {
	httpServer     *http.Server
	handlerTimeout time.Duration
	timeoutMsg     string
	maxBody        int64
	maxImage       int64
	objects        ObjectStore
	limiter        Limiter
	chatOpts       []chat.Option
	afterShutdown  []func()
}

func defaultConfig() config {
	return config{
		httpServer: &http.Server{Addr: "0.0.0.0:9000"},
		maxBody:    1 << 20,
		maxImage:   5 << 20,
	}
}

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host              string        `env:"HOST" envDefault:"0.0.0.0"`
	Port              uint16        `env:"PORT" envDefault:"9000"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	HandlerTimeout    time.Duration `env:"HANDLER_TIMEOUT" envDefault:"5s"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	MessageRateLimit  int           `env:"MESSAGE_RATE_LIMIT" envDefault:"30"`
	MessageRateWindow time.Duration `env:"MESSAGE_RATE_WINDOW" envDefault:"1m"`
}

// WithEnvConfig enables processing exported EnvConfig struct to acts as a source of config parameters for http.Server
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
		c.httpServer.ReadTimeout = cfg.ReadTimeout
		c.httpServer.WriteTimeout = cfg.WriteTimeout
		if cfg.HandlerTimeout > 0 {
			c.handlerTimeout = cfg.HandlerTimeout
		}
		if cfg.MaxBodyBytes > 0 {
			c.maxBody = cfg.MaxBodyBytes
		}
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// WriteTimeout sets write timeout for http.Server
func WriteTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.WriteTimeout = d
	})
}

// TimeoutHandler wraps the router in http.TimeoutHandler with provided duration and message
func TimeoutHandler(d time.Duration, msg string) Option {
	return optionFunc(func(c *config) {
		c.handlerTimeout = d
		c.timeoutMsg = msg
	})
}

// WithObjectStore sets where uploaded product images are kept.
// Image upload and /uploads/ answer 503 without one.
func WithObjectStore(s ObjectStore) Option {
	return optionFunc(func(c *config) {
		c.objects = s
	})
}

// WithMessageLimiter throttles message posting per user
func WithMessageLimiter(l Limiter) Option {
	return optionFunc(func(c *config) {
		c.limiter = l
	})
}

// WithUploadLimit caps the size of a single uploaded image
func WithUploadLimit(n int64) Option {
	return optionFunc(func(c *config) {
		if n > 0 {
			c.maxImage = n
		}
	})
}

// WithChatOptions passes options to the chat resolver and ledger
func WithChatOptions(opts ...chat.Option) Option {
	return optionFunc(func(c *config) {
		c.chatOpts = append(c.chatOpts, opts...)
	})
}

// RegisterAfterShutdown registers a function to call after http.Server shutdown
// f will not be called in separated goroutine
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(c *config) {
		c.afterShutdown = append(c.afterShutdown, f)
	})
}
