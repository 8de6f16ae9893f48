package service

import (
	"time"

	"github.com/dmitrymomot/actkit/core/bus"
	redisdb "github.com/dmitrymomot/actkit/integration/database/redis"
	"github.com/dmitrymomot/actkit/integration/transport/amqp"
	"github.com/dmitrymomot/actkit/integration/transport/nats"
	"github.com/dmitrymomot/actkit/integration/transport/redis"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// Config describes a service and the transport it listens on.
// An empty Transport keeps every act inside the process.
type Config struct {
	Name     string `env:"SERVICE_NAME" envDefault:"actkit"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Transport string `env:"TRANSPORT"`
	Pin       string `env:"SERVICE_PIN"`
	URL       string `env:"TRANSPORT_URL"`
	Exchange  string `env:"TRANSPORT_EXCHANGE"`
	Queue     string `env:"TRANSPORT_QUEUE"`

	ListenTimeout   time.Duration `env:"LISTEN_TIMEOUT" envDefault:"3s"`
	ClientTimeout   time.Duration `env:"CLIENT_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	AMQP           amqp.Config
	NATS           nats.Config
	Redis          redisdb.Config
	RedisTransport redis.Config
}

func (c Config) withDefaults() Config {
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = 3 * time.Second
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = 5 * time.Second
	}
	return c
}

func (c Config) listenConfig(p pin.Pin) bus.ListenConfig {
	return bus.ListenConfig{
		Type:     c.Transport,
		Pin:      p,
		URL:      c.URL,
		Name:     c.Name,
		Exchange: c.Exchange,
		Queue:    c.Queue,
		Timeout:  c.ListenTimeout,
	}
}

func (c Config) clientConfig(p pin.Pin) bus.ClientConfig {
	return bus.ClientConfig{
		Type:     c.Transport,
		Pin:      p,
		URL:      c.URL,
		Exchange: c.Exchange,
		Timeout:  c.ClientTimeout,
	}
}
