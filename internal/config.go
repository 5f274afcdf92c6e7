package internal

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	BaseURL           string        `env:"CHAT_BASE_URL,default=http://localhost:5000" validate:"required,url"`
	APIURL            string        `env:"CHAT_API_URL" validate:"omitempty,url"`
	SocketPath        string        `env:"CHAT_SOCKET_PATH,default=/socket.io/" validate:"required,startswith=/"`
	EventPrefix       string        `env:"CHAT_EVENT_PREFIX,default=chat"`
	Transports        string        `env:"CHAT_TRANSPORTS,default=websocket|polling" validate:"required"`
	Token             string        `env:"CHAT_TOKEN"`
	TokenFile         string        `env:"CHAT_TOKEN_FILE"`
	ReconnectAttempts int           `env:"CHAT_RECONNECT_ATTEMPTS,default=5" validate:"gte=0"`
	ReconnectDelay    time.Duration `env:"CHAT_RECONNECT_DELAY,default=1s" validate:"gte=0"`
	HandshakeTimeout  time.Duration `env:"CHAT_HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	WriteTimeout      time.Duration `env:"CHAT_WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	RequestTimeout    time.Duration `env:"CHAT_REQUEST_TIMEOUT,default=15s" validate:"gt=0"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=2000" validate:"gt=0"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=1m" validate:"gt=0"`
	CachePath         string        `env:"CHAT_CACHE_PATH"`
	CacheTTL          time.Duration `env:"CHAT_CACHE_TTL,default=10m" validate:"gte=0"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	Colours           bool          `env:"CHAT_COLOURS,default=true"`
}

var validate = validator.New()

// Load reads the configuration from the environment, a .env file in the
// working directory being loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, err
	}
	if _, err := config.TransportNames(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ChannelURL is the server the live channel connects to.
func (c Config) ChannelURL() (*url.URL, error) {
	return url.Parse(c.BaseURL)
}

// RestURL is the rest api root, the channel server unless CHAT_API_URL is set.
func (c Config) RestURL() (*url.URL, error) {
	if c.APIURL != "" {
		return url.Parse(c.APIURL)
	}
	return url.Parse(c.BaseURL)
}

// TransportNames splits CHAT_TRANSPORTS, in preference order.
// Names may be separated by '|', ',' or spaces.
func (c Config) TransportNames() ([]string, error) {
	names := strings.FieldsFunc(c.Transports, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("CHAT_TRANSPORTS must name at least one transport")
	}
	for i, name := range names {
		names[i] = strings.ToLower(name)
		if err := validate.Var(names[i], "oneof=websocket polling"); err != nil {
			return nil, fmt.Errorf("CHAT_TRANSPORTS: unknown transport %q", name)
		}
	}
	return names, nil
}
