package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/models"
	"github.com/eidetic-ai/eidetic/pkg/reconciler"
	"github.com/eidetic-ai/eidetic/pkg/safety"
	"github.com/eidetic-ai/eidetic/pkg/store"
)

// process runs one job end to end under the project lock. Errors never
// propagate past here; the pipeline must stay able to take the next webhook.
func (p *Pipeline) process(ctx context.Context, job Job) {
	log := p.logger.With(
		"project_id", job.ProjectID,
		"conversation_id", job.ConversationID)

	ingestCtx, cancel := context.WithTimeout(ctx, p.cfg.IngestTimeout)
	defer cancel()

	p.registerIngestion(job.ConversationID, cancel)
	defer p.unregisterIngestion(job.ConversationID)

	lock := p.locks.forProject(job.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := p.ingest(ingestCtx, job, log); err != nil {
		log.Error("ingestion failed", "error", err, "duration", time.Since(start))
		return
	}
	log.Debug("ingestion finished", "duration", time.Since(start))
}

// ingest is the full flow: idempotency check, analysis, reconciliation,
// commit, change events, script regeneration, safety pass, voice publish.
// The analysis commit and the script commit are separate transactions; a
// crash between them leaves committed knowledge without a new script, which
// the next interview repairs.
func (p *Pipeline) ingest(ctx context.Context, job Job, log *slog.Logger) error {
	seen, err := p.store.HasConversation(job.ProjectID, job.ConversationID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if seen {
		log.Info("duplicate conversation, skipping")
		return nil
	}

	snap, err := p.store.Load(job.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			log.Warn("project deleted before ingestion, dropping transcript")
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	interviewID, err := p.store.NextInterviewID(job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to allocate interview id: %w", err)
	}
	log = log.With("interview_id", interviewID)

	diff, err := p.analyst.Analyze(ctx, interviewID, job.Transcript, snap)
	if err != nil {
		// The interview is not committed: a webhook redelivery retries it.
		reason := analysisFailureReason(err)
		log.Error("analysis failed", "reason", reason, "error", err)
		p.publisher.PublishAnalysisFailed(job.ProjectID, job.ConversationID, reason, 0)
		return nil
	}

	interview := &models.Interview{
		ID:                interviewID,
		ConversationID:    job.ConversationID,
		Transcript:        job.Transcript,
		ReceivedAt:        time.Now().UTC(),
		ScriptVersionUsed: snap.Project.CurrentScriptVersion,
		Language:          job.Language,
	}

	storeDiff, report, err := p.reconciler.Reconcile(snap, diff, interview, projectIDs{p.store, job.ProjectID})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	if snap.Project.Status == models.ProjectDraft {
		storeDiff.ProjectStatus = models.ProjectRunning
	}

	if err := p.store.Commit(job.ProjectID, storeDiff); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}

	p.emitChanges(job.ProjectID, job.ConversationID, snap.Project.Status, storeDiff, report)

	if err := p.advanceScript(ctx, job, interviewID, log); err != nil {
		return err
	}

	log.Info("interview ingested",
		"new_evidence", len(report.NewEvidenceIDs),
		"new_propositions", len(report.NewPropositionIDs),
		"updated_propositions", len(report.UpdatedIDs),
		"merges", len(report.Merges),
		"pruned", len(report.Pruned),
		"rejections", len(report.Rejections))
	return nil
}

// emitChanges publishes one event per applied change, in reconciler apply
// order. Called under the project lock so subscribers observe knowledge
// changes in commit order.
func (p *Pipeline) emitChanges(projectID, conversationID string, status models.ProjectStatus, sd *models.StoreDiff, report *reconciler.Report) {
	evidence := make(map[string]*models.Evidence, len(sd.NewEvidence))
	for _, e := range sd.NewEvidence {
		evidence[e.ID] = e
	}
	props := make(map[string]*models.Proposition, len(sd.NewPropositions)+len(sd.UpdatedPropositions))
	for _, pr := range sd.NewPropositions {
		props[pr.ID] = pr
	}
	for _, pr := range sd.UpdatedPropositions {
		props[pr.ID] = pr
	}

	for _, id := range report.NewEvidenceIDs {
		if e, ok := evidence[id]; ok {
			p.publisher.PublishNewEvidence(projectID, e)
		}
	}
	for _, id := range report.NewPropositionIDs {
		if pr, ok := props[id]; ok {
			p.publisher.PublishNewProposition(projectID, pr)
		}
	}
	for _, id := range report.UpdatedIDs {
		if pr, ok := props[id]; ok {
			p.publisher.PublishPropositionUpdated(projectID, pr)
		}
	}
	for _, m := range report.Merges {
		p.publisher.PublishPropositionMerged(projectID, m.SourceIDs, m.SurvivorID)
	}
	for _, id := range report.Pruned {
		p.publisher.PublishPropositionPruned(projectID, id)
	}

	if report.Invalid() {
		p.publisher.PublishAnalysisFailed(projectID, conversationID,
			"analysis diff partially rejected", len(report.Rejections))
	}
	if sd.ReportStale != nil && *sd.ReportStale {
		p.publisher.PublishReportStale(projectID, status)
	}
}

// advanceScript builds, guards, publishes and commits the next script
// version from the post-commit snapshot.
func (p *Pipeline) advanceScript(ctx context.Context, job Job, interviewID string, log *slog.Logger) error {
	snap, err := p.store.Load(job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to reload snapshot: %w", err)
	}

	script := p.nextScript(ctx, snap, interviewID, log)

	result := p.guard.Enforce(script, snap.Project.ResearchQuestion, snap.LivePropositions())
	script = result.Script
	if result.Status != safety.StatusOK {
		script.ChangesSummary = safety.MarkSummary(script.ChangesSummary, result.Status, len(result.Violations))
	}

	syncPending := false
	syncVersion := 0
	if snap.Project.VoiceAgentID != "" {
		text := prompt.RenderInterviewer(script, p.tuning.MaxInterviewDurationMinutes)
		if err := p.voice.PublishPrompt(ctx, snap.Project.VoiceAgentID, text); err != nil {
			log.Warn("prompt publish failed, deferring to republisher",
				"script_version", script.Version, "error", err)
			p.publisher.PublishPublishFailed(job.ProjectID, script.Version, err)
			syncPending = true
			syncVersion = script.Version
		}
	}

	commit := &models.StoreDiff{
		Script:             script,
		SyncPending:        &syncPending,
		SyncPendingVersion: &syncVersion,
	}
	if err := p.store.Commit(job.ProjectID, commit); err != nil {
		return fmt.Errorf("failed to commit script v%d: %w", script.Version, err)
	}

	p.publisher.PublishScriptUpdated(job.ProjectID, script, syncPending, len(result.Violations))
	if result.Status != safety.StatusOK {
		p.publisher.PublishPromptSanitized(job.ProjectID, script.Version, result.Status, len(result.Violations))
	}
	if result.TopicRedirectApplied {
		p.publisher.PublishTopicRedirect(job.ProjectID, script.Version)
	}

	log.Info("script advanced",
		"script_version", script.Version,
		"guard_status", result.Status,
		"sync_pending", syncPending)
	return nil
}

// nextScript asks the designer for the next version. A scriptless project
// gets a deterministic minimal v1; a designer failure degrades to a minimal
// fallback so a failed model never stalls the interview loop.
func (p *Pipeline) nextScript(ctx context.Context, snap *models.Snapshot, interviewID string, log *slog.Logger) *models.InterviewScript {
	if snap.CurrentScript() == nil {
		log.Info("no script committed yet, generating minimal v1")
		return p.designer.MinimalScript(snap.Project.ResearchQuestion, snap.LivePropositions(),
			snap.Project.Metrics, 1, "")
	}

	script, err := p.designer.UpdateScript(ctx, snap, interviewID)
	if err != nil {
		log.Error("script designer failed, using fallback", "error", err)
		fallback := p.designer.MinimalScript(snap.Project.ResearchQuestion, snap.LivePropositions(),
			snap.Project.Metrics, snap.Project.CurrentScriptVersion+1, interviewID)
		fallback.ChangesSummary = "Fallback script generated after designer failure"
		return fallback
	}
	return script
}

// analysisFailureReason maps an analyst error to the reason string carried
// by the analysis_failed event.
func analysisFailureReason(err error) string {
	var unavailable *llm.UnavailableError
	var format *llm.FormatError
	switch {
	case errors.As(err, &unavailable):
		return "llm unavailable"
	case errors.As(err, &format):
		return "llm returned no parseable analysis"
	case errors.Is(err, context.DeadlineExceeded):
		return "ingestion timed out"
	case errors.Is(err, context.Canceled):
		return "ingestion cancelled"
	default:
		return "analysis error"
	}
}
