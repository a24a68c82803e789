package config_test

import (
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/cookiejar/internal/config"
	"github.com/stretchr/testify/assert"
)

func Test_MustLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg := config.MustLoad()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "data/jars", cfg.Storage.Dir)
	assert.Equal(t, 300*time.Millisecond, cfg.Storage.Debounce)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
}

func Test_MustLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("COOKIEJAR_ENV", "production")
	t.Setenv("COOKIEJAR_STORAGE_DIR", "/var/lib/jars")
	t.Setenv("COOKIEJAR_STORAGE_DEBOUNCE", "1s")
	t.Setenv("COOKIEJAR_SERVER_PORT", "9090")
	t.Setenv("COOKIEJAR_CLIENT_TIMEOUT", "5s")

	cfg := config.MustLoad()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "/var/lib/jars", cfg.Storage.Dir)
	assert.Equal(t, time.Second, cfg.Storage.Debounce)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout)
}

func Test_MustLoadFromFile(t *testing.T) {
	defer filet.CleanUp(t)

	file := filet.TmpFile(t, "", `
env: development
storage:
  dir: /tmp/jars
  debounce: 750ms
server:
  port: 8181
client:
  user_agent: test-agent
`)
	t.Setenv("CONFIG_PATH", file.Name())

	cfg := config.MustLoad()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "/tmp/jars", cfg.Storage.Dir)
	assert.Equal(t, 750*time.Millisecond, cfg.Storage.Debounce)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "test-agent", cfg.Client.UserAgent)
}

func TestMustLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/definitely/not/here.yaml")

	assert.PanicsWithValue(t, "config file does not exist: /definitely/not/here.yaml", func() {
		config.MustLoad()
	})
}

func TestMustLoad_DebounceError(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("COOKIEJAR_STORAGE_DEBOUNCE", "error_value")

	assert.PanicsWithValue(t, "failed to parse storage debounce from configuration", func() {
		config.MustLoad()
	})
}

func TestMustLoad_PortError(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("COOKIEJAR_SERVER_PORT", "eighty")

	assert.PanicsWithValue(t, "failed to parse server port from configuration", func() {
		config.MustLoad()
	})
}
