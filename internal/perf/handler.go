package perf

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	monitor *Monitor
	backoff *Backoff
}

func NewHandler(monitor *Monitor, backoff *Backoff) *Handler {
	return &Handler{monitor: monitor, backoff: backoff}
}

// Report serves the rolling health snapshot plus the retry policy clients
// should follow. Internal endpoint, for operators and the editor shell.
func (h *Handler) Report(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"snapshot":     h.monitor.Snapshot(),
		"retry_policy": h.backoff.Policy(),
	})
}
