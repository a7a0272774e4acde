package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzalabs/ensemble/internal/history"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*Router, history.Store, string) {
	t.Helper()
	store := history.NewMemStore()
	logDir := t.TempDir()
	return NewRouter(store, logDir), store, logDir
}

func TestHealthHandler_Healthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRunHandler_Get_Found(t *testing.T) {
	router, store, _ := newTestRouter(t)
	require.NoError(t, store.Create(context.Background(), &history.Record{
		RunID:     "run-1",
		PieceName: "demo",
		Status:    "completed",
		StartedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "demo", got.PieceName)
}

func TestRunHandler_Get_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_StreamLog_Found(t *testing.T) {
	router, _, logDir := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "run-2.jsonl"), []byte(`{"kind":"movement_start"}`+"\n"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/runs/run-2/log", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "movement_start")
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
}

func TestRunHandler_StreamLog_MissingFile(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/runs/ghost/log", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_StreamLog_DoesNotRequireHistoryRecord(t *testing.T) {
	router, store, logDir := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "in-flight.jsonl"), []byte(`{"kind":"movement_start"}`+"\n"), 0o644))

	_, err := store.Get(context.Background(), "in-flight")
	require.Error(t, err, "no history record should exist yet for an in-flight run")

	req := httptest.NewRequest(http.MethodGet, "/runs/in-flight/log", nil)
	rec := httptest.NewRecorder()
	router.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
