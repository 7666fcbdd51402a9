package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"photoman/storage"
)

var errLowSpace = errors.New("low free space")

// Liveness answers as long as the process serves requests
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health checks the dependencies for the readiness endpoint. Nil fields are
// skipped.
type Health struct {
	DBPing       func(ctx context.Context) error
	Redis        redis.UniversalClient
	Storage      storage.StorageAPI
	Backend      Pinger
	MinFreeSpace uint64
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

func (h *Health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]dependencyStatus)
	healthy := true
	check := func(name string, err error) {
		if err != nil {
			deps[name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
			return
		}
		deps[name] = dependencyStatus{Status: "ok"}
	}

	if h.DBPing != nil {
		check("db", h.DBPing(ctx))
	}
	if h.Redis != nil {
		check("redis", h.Redis.Ping(ctx).Err())
	}
	if h.Storage != nil {
		check("storage", h.checkStorage())
	}
	if h.Backend != nil {
		// the backend being down degrades the screens but the process is fine
		if err := h.Backend.Ping(ctx); err != nil {
			deps["backend"] = dependencyStatus{Status: "degraded", Error: err.Error()}
		} else {
			deps["backend"] = dependencyStatus{Status: "ok"}
		}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, readinessResponse{
		Status:       status,
		Dependencies: deps,
	})
}

func (h *Health) checkStorage() error {
	free, ok, err := h.Storage.FreeSpace()
	if err != nil {
		return err
	}
	if ok && free < h.MinFreeSpace {
		return errLowSpace
	}
	return nil
}
