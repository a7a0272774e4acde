package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/cadenzalabs/ensemble/internal/history"
)

// HealthHandler answers liveness probes.
type HealthHandler struct{}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHandler serves history.Record lookups and raw NDJSON log streaming.
type RunHandler struct {
	store  history.Store
	logDir string
}

// NewRunHandler builds a RunHandler reading from store and logDir.
func NewRunHandler(store history.Store, logDir string) *RunHandler {
	return &RunHandler{store: store, logDir: logDir}
}

// Get handles GET /runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"message": err.Error(),
			"runId":   id,
		}})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StreamLog handles GET /runs/:id/log, streaming the run's NDJSON file
// verbatim. It does not validate the run exists in history.Store first:
// an in-flight run's log file is readable before its terminal record is
// written, which is the common case this endpoint exists for.
func (h *RunHandler) StreamLog(c *gin.Context) {
	id := c.Param("id")
	path := filepath.Join(h.logDir, id+".jsonl")

	f, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"message": "log not found",
			"runId":   id,
		}})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/x-ndjson", f, nil)
}
