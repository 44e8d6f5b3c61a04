package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"plain seconds", "45", 45 * time.Second},
		{"go duration", "1m30s", 90 * time.Second},
		{"garbage falls back", "soon", 5 * time.Second},
		{"empty falls back", "", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getDuration("TEST_DURATION", 5*time.Second))
		})
	}
}

func TestGetBoolAndInt(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_INT", "nope")

	assert.True(t, getBool("TEST_BOOL", false))
	assert.False(t, getBool("TEST_BOOL_MISSING", false))
	assert.Equal(t, 7, getInt("TEST_INT", 7))
}

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("WS_PING_PERIOD", "20s")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 256, cfg.WebSocket.SendBufferSize)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 2000, cfg.Classroom.MaxChatLength)
}

func TestLoadDatabaseWithoutJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/classroom-test.db")

	cfg := LoadDatabase()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "/tmp/classroom-test.db", cfg.SQLitePath)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowThreshold)
}
