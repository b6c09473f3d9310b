// Package events provides the in-process, per-project event bus that feeds
// the SSE stream endpoint.
//
// Delivery contract: best-effort, FIFO per subscriber, no replay. Each
// subscriber owns a bounded backlog; when it overflows the oldest buffered
// event is dropped and counted, never the newest. Subscribers that join
// mid-stream see only future events; catching up on prior state is a REST
// concern, not a bus concern.
//
// Publishing happens under the project pipeline lock, so the emission order
// observed by any one subscriber equals the order in which the knowledge
// base was actually changed.
package events

// Knowledge events, emitted once per applied diff record.
const (
	EventTypeNewEvidence        = "new_evidence"
	EventTypeNewProposition     = "new_proposition"
	EventTypePropositionUpdated = "proposition_updated"
	EventTypePropositionMerged  = "proposition_merged"
	EventTypePropositionPruned  = "proposition_pruned"
)

// Script and pipeline events.
const (
	EventTypeScriptUpdated   = "script_updated"
	EventTypePromptSanitized = "prompt_sanitized"
	EventTypeTopicRedirect   = "topic_redirect_applied"
	EventTypeAnalysisFailed  = "analysis_failed"
	EventTypePublishFailed   = "publish_failed"
)

// Project lifecycle events.
const (
	EventTypeProjectCreated = "project_created"
	EventTypeProjectDeleted = "project_deleted"
	EventTypeReportStale    = "report_stale"
	EventTypeReportReady    = "report_ready"
)

// DefaultBacklog is the per-subscriber buffer size. A stalled SSE client
// loses at most this many events before the counter starts ticking.
const DefaultBacklog = 64

// ProjectChannel returns the channel name for a project's event stream.
// Format: "project:{project_id}"
func ProjectChannel(projectID string) string {
	return "project:" + projectID
}
