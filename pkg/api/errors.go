package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/pipeline"
	"github.com/eidetic-ai/eidetic/pkg/services"
)

// mapServiceError maps a service-layer error to an HTTP status and body,
// usable directly as c.JSON(mapServiceError(err)).
func mapServiceError(err error) (int, gin.H) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, gin.H{"error": validErr.Error()}
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, gin.H{"error": "resource not found"}
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, gin.H{"error": "resource already exists"}
	}
	if errors.Is(err, services.ErrAlreadyStarted) {
		return http.StatusConflict, gin.H{"error": "project already started"}
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		return http.StatusConflict, gin.H{"error": "project was modified concurrently, retry"}
	}
	if errors.Is(err, pipeline.ErrQueueFull) {
		return http.StatusServiceUnavailable, gin.H{"error": "ingest queue is full, retry later"}
	}
	if errors.Is(err, pipeline.ErrStopped) {
		return http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"}
	}
	if llm.IsUnavailable(err) {
		return http.StatusServiceUnavailable, gin.H{"error": "language model unavailable"}
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, gin.H{"error": "internal server error"}
}
