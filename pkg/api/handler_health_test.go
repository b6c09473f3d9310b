package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newAPIEnv(t, "", "")

		rec := env.do(t, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		health := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, healthStatusHealthy, health.Status)
		assert.NotEmpty(t, health.Version)
		assert.Equal(t, healthStatusHealthy, health.Checks["store"].Status)
		assert.Equal(t, healthStatusHealthy, health.Checks["queue"].Status)
		assert.Equal(t, 0, health.Queue.Depth)
		assert.Equal(t, 100, health.Queue.Capacity)
	})

	t.Run("degraded when the queue is full", func(t *testing.T) {
		env := newAPIEnv(t, "", "")
		env.queue.capacity = 1
		env.createProject(t, "nursing-breaks", "")

		rec := env.do(t, http.MethodPost, "/api/v1/projects/nursing-breaks/simulate",
			SimulateRequest{Transcript: "One job fills the queue."})
		require.Equal(t, http.StatusAccepted, rec.Code)

		rec = env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		health := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, healthStatusDegraded, health.Status)
		assert.Equal(t, healthStatusDegraded, health.Checks["queue"].Status)
		assert.Equal(t, 1, health.Queue.Depth)
	})

	t.Run("unhealthy when the store is down", func(t *testing.T) {
		env := newAPIEnv(t, "", "")
		require.NoError(t, env.store.Close())

		rec := env.do(t, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		health := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, healthStatusUnhealthy, health.Status)
		assert.Equal(t, healthStatusUnhealthy, health.Checks["store"].Status)
		assert.NotEmpty(t, health.Checks["store"].Message)
	})
}
