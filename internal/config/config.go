package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/yukikurage/trade-erp-api/internal/constants"
)

type Config struct {
	ServerAddr string
	GinMode    string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	RedisHost     string
	RedisPort     string
	SessionSecret string
	SessionStore  string

	OpenAIAPIKey string

	StorageDir     string
	StorageBaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WhatsAppAPIURL        string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string

	ReorderMaxAttempts int
	LiveRedisFanout    bool
}

// RedisAddr returns host:port of the Redis server used for sessions and fanout.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("gin.mode", "debug")

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.user", "erpuser")
	v.SetDefault("db.password", "erppassword")
	v.SetDefault("db.name", "trade_erp")
	v.SetDefault("db.path", "trade_erp.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("session.secret", "default-secret-key-change-me")
	v.SetDefault("session.store", "redis")

	v.SetDefault("openai.api.key", "")

	v.SetDefault("storage.dir", "data/files")
	v.SetDefault("storage.base.url", "http://localhost:8080/files")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("whatsapp.api.url", "https://graph.facebook.com/v19.0")
	v.SetDefault("whatsapp.token", "")
	v.SetDefault("whatsapp.phone.number.id", "")

	v.SetDefault("reorder.max.attempts", constants.DefaultMaxMoveAttempts)
	v.SetDefault("live.redis.fanout", false)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. Environment variables use the upper-cased key with dots
// replaced by underscores (db.host -> DB_HOST).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("erp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading erp.yaml: %w", err)
			}
		}
	}

	cfg := &Config{
		ServerAddr:            v.GetString("server.addr"),
		GinMode:               v.GetString("gin.mode"),
		DBDriver:              strings.ToLower(v.GetString("db.driver")),
		DBHost:                v.GetString("db.host"),
		DBPort:                v.GetString("db.port"),
		DBUser:                v.GetString("db.user"),
		DBPassword:            v.GetString("db.password"),
		DBName:                v.GetString("db.name"),
		DBPath:                v.GetString("db.path"),
		RedisHost:             v.GetString("redis.host"),
		RedisPort:             v.GetString("redis.port"),
		SessionSecret:         v.GetString("session.secret"),
		SessionStore:          strings.ToLower(v.GetString("session.store")),
		OpenAIAPIKey:          v.GetString("openai.api.key"),
		StorageDir:            v.GetString("storage.dir"),
		StorageBaseURL:        strings.TrimRight(v.GetString("storage.base.url"), "/"),
		SMTPHost:              v.GetString("smtp.host"),
		SMTPPort:              v.GetInt("smtp.port"),
		SMTPUsername:          v.GetString("smtp.username"),
		SMTPPassword:          v.GetString("smtp.password"),
		SMTPFrom:              v.GetString("smtp.from"),
		WhatsAppAPIURL:        strings.TrimRight(v.GetString("whatsapp.api.url"), "/"),
		WhatsAppToken:         v.GetString("whatsapp.token"),
		WhatsAppPhoneNumberID: v.GetString("whatsapp.phone.number.id"),
		ReorderMaxAttempts:    v.GetInt("reorder.max.attempts"),
		LiveRedisFanout:       v.GetBool("live.redis.fanout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (mysql, postgres, sqlite)", c.DBDriver)
	}
	switch c.SessionStore {
	case "redis", "cookie":
	default:
		return fmt.Errorf("unsupported SESSION_STORE %q (redis, cookie)", c.SessionStore)
	}
	if c.ReorderMaxAttempts < 1 {
		c.ReorderMaxAttempts = constants.DefaultMaxMoveAttempts
	}
	return nil
}
