package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string        `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string        `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	Redis      Redis         `yaml:"redis"`
	SessionTTL time.Duration `yaml:"session-ttl" env:"SESSION_TTL" env-default:"24h"`
	BoltPath   string        `yaml:"bolt-path" env:"BOLT_PATH" env-default:"./scores.db"`
	Game       Game          `yaml:"game"`

	// AllowedOrigins lists the browser origins besides the server's own that may open a socket.
	AllowedOrigins []string `yaml:"allowed-origins" env:"ALLOWED_ORIGINS" env-separator:","`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Game struct {
	BoardSize     int           `yaml:"board-size" env:"GAME_BOARD_SIZE" env-default:"3"`
	TurnTime      time.Duration `yaml:"turn-time" env:"GAME_TURN_TIME" env-default:"10s"`
	WinLengthRule string        `yaml:"win-length-rule" env:"GAME_WIN_LENGTH_RULE" env-default:"balanced"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

// Load - reads the config file at path, falling back to defaults and environment variables.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	return config, nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
