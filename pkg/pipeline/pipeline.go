package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/reconciler"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// Pipeline owns the ingest queue and its worker pool.
type Pipeline struct {
	store      *store.Store
	analyst    Analyst
	designer   Designer
	reconciler *reconciler.Reconciler
	guard      *safety.Guard
	publisher  *events.Publisher
	voice      PromptPublisher
	cfg        *config.QueueConfig
	tuning     *config.TuningConfig
	logger     *slog.Logger

	jobs     chan Job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	locks *lockTable

	// Ingestion cancel registry: conversation id → cancel function.
	mu      sync.RWMutex
	active  map[string]context.CancelFunc
	stopped bool
}

// New creates a pipeline. All dependencies except the logger are required.
func New(
	st *store.Store,
	analyst Analyst,
	designer Designer,
	rec *reconciler.Reconciler,
	guard *safety.Guard,
	publisher *events.Publisher,
	voice PromptPublisher,
	cfg *config.QueueConfig,
	tuning *config.TuningConfig,
	logger *slog.Logger,
) *Pipeline {
	switch {
	case st == nil:
		panic("pipeline requires a store")
	case analyst == nil:
		panic("pipeline requires an analyst")
	case designer == nil:
		panic("pipeline requires a designer")
	case rec == nil:
		panic("pipeline requires a reconciler")
	case guard == nil:
		panic("pipeline requires a safety guard")
	case publisher == nil:
		panic("pipeline requires an event publisher")
	case voice == nil:
		panic("pipeline requires a prompt publisher")
	case cfg == nil:
		panic("pipeline requires a queue config")
	case tuning == nil:
		panic("pipeline requires a tuning config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      st,
		analyst:    analyst,
		designer:   designer,
		reconciler: rec,
		guard:      guard,
		publisher:  publisher,
		voice:      voice,
		cfg:        cfg,
		tuning:     tuning,
		logger:     logger,
		jobs:       make(chan Job, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		locks:      newLockTable(),
		active:     make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *Pipeline) Start(ctx context.Context) {
	if p.started {
		p.logger.Warn("pipeline already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	p.logger.Info("starting ingest pipeline",
		"worker_count", p.cfg.WorkerCount,
		"queue_size", p.cfg.QueueSize)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop signals all workers to stop and waits for in-flight ingestions to
// finish. Past the graceful budget the remaining ingestions are cancelled.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	p.stopped = true
	inFlight := len(p.active)
	p.mu.Unlock()

	if inFlight > 0 {
		p.logger.Info("waiting for in-flight ingestions", "count", inFlight)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.logger.Warn("graceful shutdown budget exceeded, cancelling in-flight ingestions",
			"budget", p.cfg.GracefulShutdownTimeout)
		p.cancelAll()
		<-done
	}

	p.logger.Info("ingest pipeline stopped")
}

// Enqueue accepts one transcript job. It never blocks: a saturated queue
// fails with ErrQueueFull so the webhook handler can answer immediately.
func (p *Pipeline) Enqueue(job Job) error {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	select {
	case p.jobs <- job:
		p.logger.Info("transcript enqueued",
			"project_id", job.ProjectID,
			"conversation_id", job.ConversationID,
			"queue_depth", len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of queued jobs not yet claimed by a worker.
func (p *Pipeline) Depth() int { return len(p.jobs) }

// Capacity returns the queue's buffered capacity.
func (p *Pipeline) Capacity() int { return cap(p.jobs) }

// Cancel aborts an in-flight ingestion by conversation id. Returns true when
// the ingestion was found and cancelled.
func (p *Pipeline) Cancel(conversationID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.active[conversationID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveConversations returns the conversation ids currently being ingested.
func (p *Pipeline) ActiveConversations() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pipeline) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With("worker", id)
	log.Info("pipeline worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("pipeline worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, pipeline worker shutting down")
			return
		case job := <-p.jobs:
			p.process(ctx, job)
		}
	}
}

func (p *Pipeline) registerIngestion(conversationID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[conversationID] = cancel
}

func (p *Pipeline) unregisterIngestion(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, conversationID)
}

func (p *Pipeline) cancelAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cancel := range p.active {
		cancel()
	}
}
