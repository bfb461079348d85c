package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvKeys = []string{
	"ORCH_PORT", "ORCH_HOST", "ORCH_READ_TIMEOUT", "ORCH_WRITE_TIMEOUT",
	"ORCH_SHUTDOWN_TIMEOUT", "ORCH_API_KEYS",
	"ORCH_DATABASE_URL", "ORCH_DB_MAX_CONNECTIONS", "ORCH_DB_MIN_CONNECTIONS",
	"ORCH_DB_MAX_IDLE_TIME", "ORCH_DB_MAX_CONN_LIFETIME",
	"ORCH_LOG_LEVEL", "ORCH_LOG_FORMAT",
	"ORCH_EVENTBUS_SUBJECT_BUFFER_SIZE", "ORCH_EVENTBUS_WS_BUFFER_SIZE", "ORCH_EVENTBUS_WS_ENABLED",
	"ORCH_OBJECTSTORE_BACKEND", "ORCH_OBJECTSTORE_ROOT",
	"ORCH_OPENAI_API_KEY", "ORCH_JUDGE_MODEL_PRO", "ORCH_JUDGE_MODEL_FLASH",
	"ORCH_EMBEDDING_MODEL", "ORCH_IMAGE_GEN_MODEL", "ORCH_MOCK_GENERATOR", "ORCH_MOCK_JUDGE",
	"ORCH_DEFAULT_THRESHOLD", "ORCH_DEFAULT_MAX_ITERATIONS", "ORCH_DEFAULT_PLATEAU_WINDOW",
	"ORCH_DEFAULT_PLATEAU_DELTA", "ORCH_DEFAULT_TIME_BUDGET", "ORCH_MAX_CONSECUTIVE_EDITS",
}

func clearEnv() {
	for _, k := range allEnvKeys {
		os.Unsetenv(k)
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 8585, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Empty(t, cfg.Server.APIKeys)

	assert.Contains(t, cfg.Database.URL, "postgres://")
	assert.Equal(t, 20, cfg.Database.MaxConnections)
	assert.Equal(t, 2, cfg.Database.MinConnections)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.EventBus.EnableWebSocket)
	assert.Equal(t, 128, cfg.EventBus.SubjectBufferSize)

	assert.Equal(t, "filesystem", cfg.ObjectStore.Backend)

	assert.False(t, cfg.Models.MockGenerator)
	assert.Equal(t, 0.85, cfg.Loop.DefaultThreshold)
	assert.Equal(t, 8, cfg.Loop.DefaultMaxIterations)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("ORCH_PORT", "9090")
	os.Setenv("ORCH_HOST", "127.0.0.1")
	os.Setenv("ORCH_LOG_LEVEL", "debug")
	os.Setenv("ORCH_LOG_FORMAT", "text")
	os.Setenv("ORCH_OBJECTSTORE_BACKEND", "memory")
	os.Setenv("ORCH_MOCK_GENERATOR", "true")
	os.Setenv("ORCH_DEFAULT_THRESHOLD", "0.9")
	os.Setenv("ORCH_API_KEYS", "key1,key2,key3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.ObjectStore.Backend)
	assert.True(t, cfg.Models.MockGenerator)
	assert.Equal(t, 0.9, cfg.Loop.DefaultThreshold)
	assert.Equal(t, []string{"key1", "key2", "key3"}, cfg.Server.APIKeys)
}

func TestConfig_Load_InvalidValuesUsesDefaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("ORCH_PORT", "not-a-number")
	os.Setenv("ORCH_DEFAULT_THRESHOLD", "not-a-float")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8585, cfg.Server.Port)
	assert.Equal(t, 0.85, cfg.Loop.DefaultThreshold)
}

func TestConfig_Validate_PortRange(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("ORCH_PORT", "99999")
	_, err := Load()
	require.Error(t, err)
}

func TestConfig_Validate_EmptyDatabaseURL(t *testing.T) {
	cfg := &Config{
		Server:      ServerConfig{Port: 8080},
		Database:    DatabaseConfig{URL: ""},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		ObjectStore: ObjectStoreConfig{Backend: "memory"},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestConfig_Validate_InvalidObjectStoreBackend(t *testing.T) {
	cfg := &Config{
		Server:      ServerConfig{Port: 8080},
		Database:    DatabaseConfig{URL: "postgres://localhost/db"},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		ObjectStore: ObjectStoreConfig{Backend: "s3"},
	}
	err := cfg.Validate()
	require.Error(t, err)
}
