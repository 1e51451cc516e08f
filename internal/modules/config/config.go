package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix    = "BROKERAPI"
	configDirENV = "BROKERAPI_CONFIG_DIR"

	settingsFile = "settings.yaml"
	secretsFile  = ".secrets.yaml"

	EnvironmentTest = "test"
	EnvironmentLive = "live"

	DemoBaseURL   = "https://demo-api-capital.backend-capital.com"
	LiveBaseURL   = "https://api-capital.backend-capital.com"
	StreamBaseURL = "wss://api-streaming-capital.backend-capital.com/connect"
)

// Config ...
type Config struct {
	Connection struct {
		User        string `mapstructure:"user"`
		APIPassword string `mapstructure:"apipassword"`
		APIKey      string `mapstructure:"apikey"`
	} `mapstructure:"connection"`

	App struct {
		Environment string `mapstructure:"environment"` // test | live
		// BaseURL перекрывает хост, выбранный по environment (моки, прокси)
		BaseURL           string        `mapstructure:"base_url"`
		PingInterval      time.Duration `mapstructure:"ping_interval"`
		Keepalive         bool          `mapstructure:"keepalive"`
		HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
		MaxPages          int           `mapstructure:"max_pages"`
		PaginationTimeout time.Duration `mapstructure:"pagination_timeout"`
	} `mapstructure:"app"`

	Stream struct {
		URL          string        `mapstructure:"url"`
		PingInterval time.Duration `mapstructure:"ping_interval"`
	} `mapstructure:"stream"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // json | console
	} `mapstructure:"log"`

	Tracing struct {
		Enabled     bool   `mapstructure:"enabled"`
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Health struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"health"`

	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
}

// Source: откуда читать settings.yaml / .secrets.yaml. Пустой Dir => BROKERAPI_CONFIG_DIR или ".".
type Source struct {
	Dir string
}

func setDefaults(v *viper.Viper) {
	// обязательные ключи тоже регистрируем, иначе AutomaticEnv не попадёт в Unmarshal
	v.SetDefault("connection.user", "")
	v.SetDefault("connection.apipassword", "")
	v.SetDefault("connection.apikey", "")

	v.SetDefault("app.environment", "")
	v.SetDefault("app.base_url", "")
	v.SetDefault("app.ping_interval", 300*time.Second)
	v.SetDefault("app.keepalive", true)
	v.SetDefault("app.http_timeout", 30*time.Second)
	v.SetDefault("app.max_pages", 500)
	v.SetDefault("app.pagination_timeout", 10*time.Minute)

	v.SetDefault("stream.url", StreamBaseURL)
	v.SetDefault("stream.ping_interval", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("tracing.service_name", "capital_bot")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("health.addr", ":8080")

	v.SetDefault("db.dsn", "")
}

// NewConfig собирает конфиг: defaults < settings.yaml < .secrets.yaml < .env < окружение.
// Ошибки валидации возвращаются как *ConfigError до любых сетевых вызовов.
func NewConfig(src Source) (*Config, error) {
	dir := src.Dir
	if dir == "" {
		dir = os.Getenv(configDirENV)
	}
	if dir == "" {
		dir = "."
	}

	// .env необязателен, как и в старом internal/config
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	read := v.ReadInConfig
	for _, name := range []string{settingsFile, secretsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &ConfigError{Key: name, Reason: "stat failed", Err: err}
		}
		v.SetConfigFile(path)
		if err := read(); err != nil {
			return nil, &ConfigError{Key: name, Reason: "read failed", Err: errors.Wrap(err, path)}
		}
		// первый найденный файл читаем, остальные домешиваем
		read = v.MergeInConfig
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Key: "*", Reason: "decode failed", Err: err}
	}
	cfg.App.Environment = strings.ToLower(strings.TrimSpace(cfg.App.Environment))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BaseURL: хост REST API для выбранного окружения.
func (c *Config) BaseURL() string {
	if c.App.BaseURL != "" {
		return strings.TrimRight(c.App.BaseURL, "/")
	}
	if c.App.Environment == EnvironmentLive {
		return LiveBaseURL
	}
	return DemoBaseURL
}
