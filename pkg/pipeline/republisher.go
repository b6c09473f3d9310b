package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/events"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// Republisher retries voice-agent prompt publishes that failed during
// ingestion. Projects keep accepting interviews while out of sync; this
// background loop heals them. It shares the pipeline's project locks so a
// republish never races a publish from an in-flight ingestion.
type Republisher struct {
	store     *store.Store
	voice     PromptPublisher
	publisher *events.Publisher
	tuning    *config.TuningConfig
	locks     *lockTable
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRepublisher creates the republish loop for a pipeline.
func NewRepublisher(p *Pipeline, interval time.Duration) *Republisher {
	if p == nil {
		panic("republisher requires a pipeline")
	}
	if interval <= 0 {
		interval = config.DefaultQueueConfig().RepublishInterval
	}
	return &Republisher{
		store:     p.store,
		voice:     p.voice,
		publisher: p.publisher,
		tuning:    p.tuning,
		locks:     p.locks,
		interval:  interval,
		logger:    p.logger,
	}
}

// Start launches the background loop. The first pass runs immediately so
// publishes that failed before a restart are retried at startup.
func (r *Republisher) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	r.logger.Info("republisher started", "interval", r.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Republisher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("republisher stopped")
}

func (r *Republisher) run(ctx context.Context) {
	defer close(r.done)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce retries every project whose last publish failed.
func (r *Republisher) RunOnce(ctx context.Context) {
	pending, err := r.store.ListPendingPublish()
	if err != nil {
		r.logger.Error("failed to list projects pending publish", "error", err)
		return
	}
	for _, project := range pending {
		if ctx.Err() != nil {
			return
		}
		r.republish(ctx, project.ID)
	}
}

func (r *Republisher) republish(ctx context.Context, projectID string) {
	log := r.logger.With("project_id", projectID)

	lock := r.locks.forProject(projectID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: an ingestion may have republished meanwhile.
	snap, err := r.store.Load(projectID)
	if err != nil {
		log.Warn("failed to load project for republish", "error", err)
		return
	}
	if !snap.Project.SyncPending {
		return
	}

	script := snap.CurrentScript()
	if script == nil || snap.Project.VoiceAgentID == "" {
		log.Warn("sync pending without a publishable script, clearing flag")
		r.clearSyncPending(projectID, log)
		return
	}

	text := prompt.RenderInterviewer(script, r.tuning.MaxInterviewDurationMinutes)
	if err := r.voice.PublishPrompt(ctx, snap.Project.VoiceAgentID, text); err != nil {
		log.Warn("republish attempt failed", "script_version", script.Version, "error", err)
		return
	}

	if !r.clearSyncPending(projectID, log) {
		return
	}
	log.Info("republished pending script", "script_version", script.Version)
	r.publisher.PublishScriptUpdated(projectID, script, false, 0)
}

func (r *Republisher) clearSyncPending(projectID string, log *slog.Logger) bool {
	syncPending := false
	syncVersion := 0
	err := r.store.Commit(projectID, &models.StoreDiff{
		SyncPending:        &syncPending,
		SyncPendingVersion: &syncVersion,
	})
	if err != nil {
		log.Error("failed to clear sync_pending", "error", err)
		return false
	}
	return true
}
