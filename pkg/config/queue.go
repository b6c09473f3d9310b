package config

import "time"

// QueueConfig controls the ingest pipeline workers.
type QueueConfig struct {
	// WorkerCount is the number of pipeline workers draining the ingest queue.
	WorkerCount int `yaml:"worker_count"`

	// QueueSize is the buffered capacity of the ingest queue. Enqueue on a
	// full queue fails fast rather than blocking the webhook handler.
	QueueSize int `yaml:"queue_size"`

	// IngestTimeout bounds a single transcript's full pipeline run
	// (analysis, reconciliation, script generation, publish).
	IngestTimeout time.Duration `yaml:"ingest_timeout"`

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight
	// pipeline runs to finish.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// RepublishInterval is how often the republisher retries projects whose
	// last voice-agent publish failed.
	RepublishInterval time.Duration `yaml:"republish_interval"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             2,
		QueueSize:               64,
		IngestTimeout:           5 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		RepublishInterval:       2 * time.Minute,
	}
}
