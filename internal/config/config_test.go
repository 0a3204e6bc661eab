package config

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.Retries)
	assert.Equal(t, 50*time.Millisecond, cfg.Store.Backoff)
	assert.Equal(t, 99999, cfg.Coordinator.CodeMax)
	assert.Equal(t, 8, cfg.Coordinator.CodeRetries)
	assert.False(t, cfg.Redis.Enabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StorePostgres)
	t.Setenv("CODE_MAX", "999")
	t.Setenv("WAITING_TTL", "30s")
	t.Setenv("REDIS_ENABLED", "true")

	cfg := FromEnv()

	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, 999, cfg.Coordinator.CodeMax)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.WaitingTTL)
	assert.True(t, cfg.Redis.Enabled)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CODE_RETRIES", "-4")
	t.Setenv("STORE_BACKOFF", "soon")

	cfg := FromEnv()

	assert.Equal(t, 8, cfg.Coordinator.CodeRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Store.Backoff)
}

func TestDisplayValueMasksPasswords(t *testing.T) {
	assert.Equal(t, "******", displayValue("DB_PASSWORD", "shared"))
	assert.Equal(t, "******", displayValue("REDIS_PASSWORD", "hunter2"))
	assert.Equal(t, "", displayValue("REDIS_PASSWORD", ""))
	assert.Equal(t, "localhost", displayValue("DB_HOST", "localhost"))
}

func TestGetenvDoesNotPrintPasswords(t *testing.T) {
	t.Setenv("DB_PASSWORD", "s3cret-value")

	out := captureStdout(t, func() {
		assert.Equal(t, "s3cret-value", getenv("DB_PASSWORD", "shared"))
	})

	assert.NotContains(t, out, "s3cret-value")
	assert.Contains(t, out, "DB_PASSWORD")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	_ = w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(out)
}
