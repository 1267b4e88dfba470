// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/MGallo-Code/dirshare/internal/web"
)

// CheckHealth handles GET /health -- pings the blob backend and the session cache.
// Returns 200 if both are healthy (or the cache is disabled), 503 if either is down.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "ok"
	blobStatus := "ok"

	if err := h.Svc.Cache.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrCacheDisabled) {
			cacheStatus = "disabled"
		} else {
			web.LogError(r, "session cache health check failed", "error", err)
			cacheStatus = "error"
		}
	}
	if h.Blobs != nil {
		if err := blob.Ping(r.Context(), h.Blobs); err != nil {
			web.LogError(r, "blob store health check failed", "error", err)
			blobStatus = "error"
		}
	}

	status := http.StatusOK
	if cacheStatus == "error" || blobStatus == "error" {
		status = http.StatusServiceUnavailable
	}
	web.JSON(w, status, struct {
		Blob  string `json:"blob"`
		Cache string `json:"cache"`
	}{blobStatus, cacheStatus})
}
