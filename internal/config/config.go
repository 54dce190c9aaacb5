package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/exchangelink/internal/rates"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport/webrtc"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	ICE       ICEConfig       `mapstructure:"ice"`
	Heartbeat time.Duration   `mapstructure:"heartbeat"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Share     ShareConfig     `mapstructure:"share"`
	Log       LogConfig       `mapstructure:"log"`
}

// BrokerConfig is used by the client (URL) and by the broker server (Addr).
type BrokerConfig struct {
	URL           string        `mapstructure:"url"`
	Addr          string        `mapstructure:"addr"`
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
}

type ICEConfig struct {
	Servers []string `mapstructure:"servers"`
}

type ReconnectConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RatesConfig struct {
	BitcoinURL string        `mapstructure:"bitcoin_url"`
	USDURL     string        `mapstructure:"usd_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ShareConfig holds the base of magic links handed to partners.
type ShareConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and env. path overrides
// $EXCHANGELINK_CONFIG; without either, ~/.config/exchangelink/config.toml is
// used when present. Env var overrides use prefix EXCHANGELINK_.
func Load(path string) (Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()

	// default values
	v.SetDefault("broker.url", "ws://localhost:9000/peerjs")
	v.SetDefault("broker.addr", ":9000")
	v.SetDefault("broker.client_timeout", 10*time.Second)
	v.SetDefault("ice.servers", webrtc.DefaultSTUNServers())
	v.SetDefault("heartbeat", 5*time.Second)
	v.SetDefault("reconnect.delay", 5*time.Second)
	v.SetDefault("reconnect.max_attempts", 0)
	v.SetDefault("reconnect.multiplier", 1.0)
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "exchangelink", "exchangelink.db"))
	v.SetDefault("rates.bitcoin_url", rates.DefaultBitcoinURL)
	v.SetDefault("rates.usd_url", rates.DefaultUSDURL)
	v.SetDefault("rates.timeout", rates.DefaultTimeout)
	v.SetDefault("share.base_url", "https://exchangelink.app/")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("EXCHANGELINK_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "exchangelink"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("EXCHANGELINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
