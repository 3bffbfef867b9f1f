package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/config"
	"taskmanager/internal/logger"
	"taskmanager/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T, storageKind string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Agent.Storage = storageKind
	cfg.Agent.DataDir = t.TempDir()
	cfg.Agent.ServerURL = "http://127.0.0.1:1"
	cfg.Agent.RequestTimeout = 200 * time.Millisecond
	cfg.Reminders.LeadTime = 30 * time.Minute
	return cfg
}

func TestOpenKV(t *testing.T) {
	ctx := context.Background()

	kv, closeKV, err := OpenKV(ctx, testConfig(t, "memory"))
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryKV{}, kv)
	assert.NoError(t, closeKV())

	kv, _, err = OpenKV(ctx, testConfig(t, "file"))
	require.NoError(t, err)
	assert.IsType(t, &storage.FileKV{}, kv)

	cfg := testConfig(t, "sqlite")
	kv, closeKV, err = OpenKV(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLiteKV{}, kv)
	require.NoError(t, kv.Set(ctx, storage.KeyTasks, []byte(`[]`)))
	assert.NoError(t, closeKV())
	assert.FileExists(t, filepath.Join(cfg.Agent.DataDir, sqliteFile))

	_, _, err = OpenKV(ctx, testConfig(t, "bolt"))
	assert.Error(t, err)
}

func TestNewAgent_OfflineStart(t *testing.T) {
	a, err := NewAgent(context.Background(), testConfig(t, "memory"), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Monitor.Online())
	assert.Empty(t, a.Store.Tasks())

	r := a.Router()
	for _, path := range []string{"/healthz", "/tasks", "/logs", "/sync/status", "/swagger/doc.json"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRunServer_StopsWithContext(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunServer(ctx, cfg, logger.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
