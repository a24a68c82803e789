package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env     string        `yaml:"env"     env-default:"local"` // Env is the current environment: local, development, production.
	Storage StorageConfig `yaml:"storage"`                     // Storage holds the jar persistence configuration.
	Server  ServerConfig  `yaml:"server"`                      // Server holds the admin/monitoring server configuration.
	Client  ClientConfig  `yaml:"client"`                      // Client holds the upstream HTTP client configuration.
}

// StorageConfig struct holds where and how often jars are written to disk.
type StorageConfig struct {
	Dir      string        `yaml:"dir"      env-default:"data/jars"` // Dir is the directory holding one JSON document per jar.
	Debounce time.Duration `yaml:"debounce" env-default:"300ms"`     // Debounce is the window that coalesces jar writes.
}

// ServerConfig struct holds the admin server settings.
type ServerConfig struct {
	Port int `yaml:"port" env-default:"8080"` // Port is the listen port for /metrics, /healthz and /debug.
}

// ClientConfig struct holds the settings of the cookie-aware HTTP client.
type ClientConfig struct {
	Timeout   time.Duration `yaml:"timeout"    env-default:"30s"` // Timeout bounds one upstream exchange.
	UserAgent string        `yaml:"user_agent"`                   // UserAgent is sent when the request has none.
}

// MustLoad loads the configuration from an optional YAML file named by CONFIG_PATH
// and from COOKIEJAR_* environment variables, and returns a Config struct.
func MustLoad() *Config {
	v := viper.New()
	v.SetEnvPrefix("cookiejar")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "local")
	v.SetDefault("storage.dir", "data/jars")
	v.SetDefault("storage.debounce", "300ms")
	v.SetDefault("server.port", "8080")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.user_agent", "cookiejar/1.0")

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		// check if file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			panic("config file does not exist: " + configPath)
		}

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			panic("config error: " + err.Error())
		}
	}

	debounce, err := time.ParseDuration(v.GetString("storage.debounce"))
	if err != nil || debounce <= 0 {
		panic("failed to parse storage debounce from configuration")
	}

	timeout, err := time.ParseDuration(v.GetString("client.timeout"))
	if err != nil {
		panic("failed to parse client timeout from configuration")
	}

	port, err := strconv.Atoi(v.GetString("server.port"))
	if err != nil {
		panic("failed to parse server port from configuration")
	}

	return &Config{
		Env: v.GetString("env"),
		Storage: StorageConfig{
			Dir:      v.GetString("storage.dir"),
			Debounce: debounce,
		},
		Server: ServerConfig{
			Port: port,
		},
		Client: ClientConfig{
			Timeout:   timeout,
			UserAgent: v.GetString("client.user_agent"),
		},
	}
}
