// Package reconciler applies an Analyst diff to a project snapshot and
// produces the validated StoreDiff a single commit applies. All derived state
// lives here: id assignment, evidence-set edits, confidence, status
// transitions, merge transitivity and the convergence metrics. The Analyst
// only proposes; this package decides.
package reconciler

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

// singleInterviewPenalty is subtracted from confidence when every evidence
// reference of a proposition comes from one interview, floored at 0.
const singleInterviewPenalty = 0.2

// Status-transition thresholds. The tuning config gates merge/prune and the
// research mode; these two are fixed by the confidence model itself.
const (
	confirmThreshold  = 0.7
	saturateThreshold = 0.8
)

// IDSource hands out committed, never-reused ids for one project. Reserved
// ids are burned even when the record they were meant for is dropped.
type IDSource interface {
	ReserveEvidenceIDs(n int) ([]string, error)
	ReservePropositionIDs(n int) ([]string, error)
}

// Reconciler is stateless; one instance serves all projects.
type Reconciler struct {
	cfg    *config.TuningConfig
	logger *slog.Logger
}

// New creates a Reconciler. Panics on nil config (programmer error).
func New(cfg *config.TuningConfig, logger *slog.Logger) *Reconciler {
	if cfg == nil {
		panic("reconciler.New: cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cfg: cfg, logger: logger}
}

// workingState is the mutable copy of the proposition collection one
// reconciliation edits. Snapshot data is never modified.
type workingState struct {
	props   []*models.Proposition
	byID    map[string]*models.Proposition
	orig    map[string]*models.Proposition // snapshot values for change detection
	born    map[string]bool                // ids created by this diff
	grew    map[string]bool                // ids whose evidence union gained a member
	touched map[string]bool                // ids whose evidence sets changed at all

	// evidenceInterview maps every committed evidence id to its interview.
	evidenceInterview map[string]string
}

// Reconcile validates and applies one analysis diff. It returns the StoreDiff
// for the knowledge commit plus a Report of everything applied and refused.
// Only id reservation can fail; every malformed diff record is dropped into
// the report instead of failing the call.
func (r *Reconciler) Reconcile(snap *models.Snapshot, diff *models.AnalysisDiff, interview *models.Interview, ids IDSource) (*models.StoreDiff, *Report, error) {
	report := &Report{InterviewID: interview.ID, Merged: make(map[string]string)}

	st := newWorkingState(snap)

	newEvidence, evidenceRefs, err := r.commitEvidence(st, diff, interview, ids, report)
	if err != nil {
		return nil, nil, err
	}

	newborns, propRefs, err := r.createPropositions(st, diff, interview, ids, report)
	if err != nil {
		return nil, nil, err
	}

	appliedMappings := r.applyMappings(st, diff, interview, evidenceRefs, propRefs, report)

	mergeTargets, err := r.applyMerges(st, diff, interview, propRefs, ids, report)
	if err != nil {
		return nil, nil, err
	}
	r.applySubsumes(st, diff, interview, propRefs, report)
	compressMergeChains(st, report)

	r.updateCounters(st)
	r.applyPrunes(st, diff, propRefs, report)
	r.recomputeConfidence(st)
	r.applyStatusTransitions(st)

	metrics := r.computeMetrics(st, newEvidence, appliedMappings, newborns)
	report.Metrics = metrics

	storeDiff := r.assembleStoreDiff(snap, st, newEvidence, newborns, mergeTargets, interview, metrics, report)

	r.logger.Info("diff reconciled",
		"project_id", snap.Project.ID,
		"interview_id", interview.ID,
		"new_evidence", len(report.NewEvidenceIDs),
		"new_propositions", len(report.NewPropositionIDs),
		"updated", len(report.UpdatedIDs),
		"merged", len(report.Merged),
		"pruned", len(report.Pruned),
		"rejections", len(report.Rejections),
		"convergence", metrics.ConvergenceScore,
		"novelty", metrics.NoveltyRate,
		"mode", metrics.Mode)
	return storeDiff, report, nil
}

func newWorkingState(snap *models.Snapshot) *workingState {
	st := &workingState{
		byID:              make(map[string]*models.Proposition, len(snap.Propositions)),
		orig:              make(map[string]*models.Proposition, len(snap.Propositions)),
		born:              make(map[string]bool),
		grew:              make(map[string]bool),
		touched:           make(map[string]bool),
		evidenceInterview: make(map[string]string, len(snap.Evidence)),
	}
	for _, p := range snap.Propositions {
		cp := *p
		cp.SupportingEvidence = slices.Clone(p.SupportingEvidence)
		cp.ContradictingEvidence = slices.Clone(p.ContradictingEvidence)
		st.props = append(st.props, &cp)
		st.byID[cp.ID] = &cp
		st.orig[cp.ID] = p
	}
	for _, e := range snap.Evidence {
		st.evidenceInterview[e.ID] = e.InterviewID
	}
	return st
}

// commitEvidence assigns real ids to the extracted evidence and returns the
// committed records plus the symbolic-ref table. Evidence is append-only and
// always survives; only a duplicate symbolic ref is a rejection (the first
// occurrence keeps the ref).
func (r *Reconciler) commitEvidence(st *workingState, diff *models.AnalysisDiff, interview *models.Interview, ids IDSource, report *Report) ([]*models.Evidence, map[string]string, error) {
	refs := make(map[string]string, len(diff.NewEvidence))
	if len(diff.NewEvidence) == 0 {
		return nil, refs, nil
	}

	assigned, err := ids.ReserveEvidenceIDs(len(diff.NewEvidence))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reserve evidence ids: %w", err)
	}

	now := time.Now().UTC()
	committed := make([]*models.Evidence, 0, len(diff.NewEvidence))
	for i, item := range diff.NewEvidence {
		id := assigned[i]
		if _, dup := refs[item.Ref]; dup {
			report.reject(RejectEvidence, fmt.Sprintf("duplicate evidence ref %q, keeping first occurrence", item.Ref))
		} else {
			refs[item.Ref] = id
		}
		committed = append(committed, &models.Evidence{
			ID:             id,
			InterviewID:    interview.ID,
			Quote:          item.Quote,
			Interpretation: item.Interpretation,
			Factor:         item.Factor,
			Mechanism:      item.Mechanism,
			Outcome:        item.Outcome,
			Tags:           item.Tags,
			Language:       item.Language,
			Timestamp:      now,
		})
		st.evidenceInterview[id] = interview.ID
		report.NewEvidenceIDs = append(report.NewEvidenceIDs, id)
	}
	return committed, refs, nil
}

// createPropositions materializes newborn propositions with real ids.
func (r *Reconciler) createPropositions(st *workingState, diff *models.AnalysisDiff, interview *models.Interview, ids IDSource, report *Report) ([]*models.Proposition, map[string]string, error) {
	refs := make(map[string]string, len(diff.NewPropositions))
	if len(diff.NewPropositions) == 0 {
		return nil, refs, nil
	}

	assigned, err := ids.ReservePropositionIDs(len(diff.NewPropositions))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reserve proposition ids: %w", err)
	}

	newborns := make([]*models.Proposition, 0, len(diff.NewPropositions))
	for i, proposal := range diff.NewPropositions {
		if _, dup := refs[proposal.Ref]; dup {
			report.reject(RejectProposition, fmt.Sprintf("duplicate proposition ref %q", proposal.Ref))
			continue
		}
		p := &models.Proposition{
			ID:                   assigned[i],
			Factor:               proposal.Factor,
			Mechanism:            proposal.Mechanism,
			Outcome:              proposal.Outcome,
			Status:               proposal.Status,
			FirstSeenInterview:   interview.ID,
			LastUpdatedInterview: interview.ID,
		}
		refs[proposal.Ref] = p.ID
		st.props = append(st.props, p)
		st.byID[p.ID] = p
		st.born[p.ID] = true
		newborns = append(newborns, p)
		report.NewPropositionIDs = append(report.NewPropositionIDs, p.ID)
	}
	return newborns, refs, nil
}

// applyMappings attaches evidence to propositions. A mapping whose
// relationship contradicts an earlier placement moves the id between sets.
// Returns the applied mappings with refs resolved to real ids.
func (r *Reconciler) applyMappings(st *workingState, diff *models.AnalysisDiff, interview *models.Interview, evidenceRefs, propRefs map[string]string, report *Report) []models.EvidenceMapping {
	applied := make([]models.EvidenceMapping, 0, len(diff.Mappings))
	for _, m := range diff.Mappings {
		evidenceID, ok := resolveRef(m.EvidenceRef, "e#", evidenceRefs, st.evidenceInterview)
		if !ok {
			report.reject(RejectMapping, fmt.Sprintf("unknown evidence %q", m.EvidenceRef))
			continue
		}
		prop, ok := resolveProposition(m.PropositionID, propRefs, st.byID)
		if !ok {
			report.reject(RejectMapping, fmt.Sprintf("unknown proposition %q", m.PropositionID))
			continue
		}
		if prop.Status == models.StatusMerged {
			report.reject(RejectMapping, fmt.Sprintf("proposition %s is %s and gains no evidence", prop.ID, prop.Status))
			continue
		}

		if attachEvidence(prop, evidenceID, m.Relationship == models.RelSupports, st) {
			prop.LastUpdatedInterview = interview.ID
			// New supporting evidence resurrects a pruned proposition;
			// only merged is terminal.
			if prop.Status == models.StatusWeak && m.Relationship == models.RelSupports {
				prop.Status = models.StatusExploring
			}
		}
		applied = append(applied, models.EvidenceMapping{
			EvidenceRef:   evidenceID,
			PropositionID: prop.ID,
			Relationship:  m.Relationship,
		})
	}
	return applied
}

// attachEvidence places an evidence id into the proposition's supporting or
// contradicting set, flipping it out of the opposite set when already there.
// Reports whether anything changed.
func attachEvidence(prop *models.Proposition, evidenceID string, supports bool, st *workingState) bool {
	into, outOf := &prop.SupportingEvidence, &prop.ContradictingEvidence
	if !supports {
		into, outOf = outOf, into
	}
	if slices.Contains(*into, evidenceID) {
		return false
	}
	union := len(prop.SupportingEvidence) + len(prop.ContradictingEvidence)
	if i := slices.Index(*outOf, evidenceID); i >= 0 {
		*outOf = slices.Delete(*outOf, i, i+1)
	}
	*into = append(*into, evidenceID)
	st.touched[prop.ID] = true
	if len(prop.SupportingEvidence)+len(prop.ContradictingEvidence) > union {
		st.grew[prop.ID] = true
	}
	return true
}

// applyMerges creates one survivor proposition per valid merge proposal and
// retires the sources. Evidence unions flow at apply time, so later proposals
// see the already-merged state.
func (r *Reconciler) applyMerges(st *workingState, diff *models.AnalysisDiff, interview *models.Interview, propRefs map[string]string, ids IDSource, report *Report) ([]*models.Proposition, error) {
	if len(diff.Merges) == 0 {
		return nil, nil
	}

	assigned, err := ids.ReservePropositionIDs(len(diff.Merges))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve merge ids: %w", err)
	}

	targets := make([]*models.Proposition, 0, len(diff.Merges))
	for i, proposal := range diff.Merges {
		sources := make([]*models.Proposition, 0, len(proposal.SourceIDs))
		valid := true
		seen := make(map[string]bool, len(proposal.SourceIDs))
		for _, id := range proposal.SourceIDs {
			prop, ok := resolveProposition(id, propRefs, st.byID)
			if !ok {
				report.reject(RejectMerge, fmt.Sprintf("unknown merge source %q", id))
				valid = false
				break
			}
			if !prop.IsLive() {
				report.reject(RejectMerge, fmt.Sprintf("merge source %s is not live", prop.ID))
				valid = false
				break
			}
			if seen[prop.ID] {
				continue
			}
			seen[prop.ID] = true
			sources = append(sources, prop)
		}
		if !valid {
			continue
		}
		if len(sources) < 2 {
			report.reject(RejectMerge, "merge needs at least two distinct live sources")
			continue
		}
		if !r.mergeOverlapOK(sources) {
			report.reject(RejectMerge, fmt.Sprintf("supporting-evidence overlap below %.2f for %s",
				r.cfg.MergeOverlapThreshold, strings.Join(proposal.SourceIDs, "+")))
			continue
		}

		target := &models.Proposition{
			ID:                   assigned[i],
			Factor:               proposal.Factor,
			Mechanism:            proposal.Mechanism,
			Outcome:              proposal.Outcome,
			Status:               models.StatusExploring,
			FirstSeenInterview:   interview.ID,
			LastUpdatedInterview: interview.ID,
		}
		record := MergeRecord{SurvivorID: target.ID}
		for _, src := range sources {
			unionEvidence(target, src.SupportingEvidence, src.ContradictingEvidence, st)
			src.Status = models.StatusMerged
			src.MergedInto = target.ID
			src.LastUpdatedInterview = interview.ID
			st.touched[src.ID] = true
			record.SourceIDs = append(record.SourceIDs, src.ID)
		}
		st.props = append(st.props, target)
		st.byID[target.ID] = target
		st.born[target.ID] = true
		st.touched[target.ID] = true
		targets = append(targets, target)
		report.NewPropositionIDs = append(report.NewPropositionIDs, target.ID)
		report.Merges = append(report.Merges, record)
	}
	return targets, nil
}

// mergeOverlapOK re-checks the supporting-evidence Jaccard between every pair
// of merge sources. A proposal below the tuned threshold is refused even when
// structurally valid.
func (r *Reconciler) mergeOverlapOK(sources []*models.Proposition) bool {
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			if jaccard(sources[i].SupportingEvidence, sources[j].SupportingEvidence) < r.cfg.MergeOverlapThreshold {
				return false
			}
		}
	}
	return true
}

// jaccard is |a∩b| / |a∪b| over evidence-id sets; 0 when both are empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	union := make(map[string]bool, len(a)+len(b))
	for _, id := range a {
		union[id] = true
	}
	intersection := 0
	for _, id := range b {
		if union[id] {
			intersection++
		}
		union[id] = true
	}
	return float64(intersection) / float64(len(union))
}

// applySubsumes folds specializations into their generalizations: supporting
// evidence is unioned into the generalization, the specialization retires.
// A generalization that already merged this pass is chased to its live
// survivor, so chained proposals land regardless of their order in the diff.
func (r *Reconciler) applySubsumes(st *workingState, diff *models.AnalysisDiff, interview *models.Interview, propRefs map[string]string, report *Report) {
	for _, proposal := range diff.Subsumes {
		spec, ok := resolveProposition(proposal.SpecializationID, propRefs, st.byID)
		if !ok {
			report.reject(RejectSubsume, fmt.Sprintf("unknown specialization %q", proposal.SpecializationID))
			continue
		}
		gen, ok := resolveProposition(proposal.GeneralizationID, propRefs, st.byID)
		if !ok {
			report.reject(RejectSubsume, fmt.Sprintf("unknown generalization %q", proposal.GeneralizationID))
			continue
		}
		gen = followSurvivor(gen, st)
		if spec.ID == gen.ID {
			report.reject(RejectSubsume, fmt.Sprintf("%s cannot subsume itself", spec.ID))
			continue
		}
		if !spec.IsLive() || !gen.IsLive() {
			report.reject(RejectSubsume, fmt.Sprintf("subsume %s into %s requires both live", spec.ID, gen.ID))
			continue
		}

		unionEvidence(gen, spec.SupportingEvidence, nil, st)
		gen.LastUpdatedInterview = interview.ID
		spec.Status = models.StatusMerged
		spec.MergedInto = gen.ID
		spec.LastUpdatedInterview = interview.ID
		st.touched[spec.ID] = true
		report.Merges = append(report.Merges, MergeRecord{
			SourceIDs:  []string{spec.ID},
			SurvivorID: gen.ID,
		})
	}
}

// unionEvidence adds evidence ids into the target's sets, skipping ids the
// target already classifies. Supporting placement wins when the same id
// arrives on both sides.
func unionEvidence(target *models.Proposition, supporting, contradicting []string, st *workingState) {
	for _, id := range supporting {
		if slices.Contains(target.SupportingEvidence, id) || slices.Contains(target.ContradictingEvidence, id) {
			continue
		}
		target.SupportingEvidence = append(target.SupportingEvidence, id)
		st.touched[target.ID] = true
		st.grew[target.ID] = true
	}
	for _, id := range contradicting {
		if slices.Contains(target.SupportingEvidence, id) || slices.Contains(target.ContradictingEvidence, id) {
			continue
		}
		target.ContradictingEvidence = append(target.ContradictingEvidence, id)
		st.touched[target.ID] = true
		st.grew[target.ID] = true
	}
}

// followSurvivor chases merged_into pointers to the final live proposition.
func followSurvivor(p *models.Proposition, st *workingState) *models.Proposition {
	for hops := 0; hops < len(st.props); hops++ {
		if p.Status != models.StatusMerged || p.MergedInto == "" {
			return p
		}
		next, ok := st.byID[p.MergedInto]
		if !ok {
			return p
		}
		p = next
	}
	return p
}

// compressMergeChains rewrites merged_into pointers to their final live
// survivor, so A→B→C ends as A→C. Evidence already flowed transitively at
// apply time.
func compressMergeChains(st *workingState, report *Report) {
	for _, p := range st.props {
		if p.Status != models.StatusMerged || p.MergedInto == "" {
			continue
		}
		final := p.MergedInto
		for hops := 0; hops < len(st.props); hops++ {
			next, ok := st.byID[final]
			if !ok || next.Status != models.StatusMerged || next.MergedInto == "" {
				break
			}
			final = next.MergedInto
		}
		p.MergedInto = final
		if st.touched[p.ID] {
			report.Merged[p.ID] = final
		}
	}
}

// updateCounters bumps interviews_without_new_evidence on every live
// proposition whose evidence union did not grow this interview and resets the
// ones that did. Flips between sets do not count as growth.
func (r *Reconciler) updateCounters(st *workingState) {
	for _, p := range st.props {
		if !p.IsLive() {
			continue
		}
		if st.grew[p.ID] || st.born[p.ID] {
			p.InterviewsWithoutNewEvidence = 0
		} else {
			p.InterviewsWithoutNewEvidence++
		}
	}
}

// applyPrunes honors prune proposals whose thresholds hold after this
// interview's counter update.
func (r *Reconciler) applyPrunes(st *workingState, diff *models.AnalysisDiff, propRefs map[string]string, report *Report) {
	for _, proposal := range diff.Prunes {
		prop, ok := resolveProposition(proposal.PropositionID, propRefs, st.byID)
		if !ok {
			report.reject(RejectPrune, fmt.Sprintf("unknown proposition %q", proposal.PropositionID))
			continue
		}
		if !prop.IsLive() {
			report.reject(RejectPrune, fmt.Sprintf("proposition %s is already %s", prop.ID, prop.Status))
			continue
		}
		if prop.Confidence >= r.cfg.PruneConfidenceThreshold || prop.InterviewsWithoutNewEvidence < r.cfg.PruneMinInterviews {
			report.reject(RejectPrune, fmt.Sprintf("proposition %s does not meet prune thresholds (confidence %.2f, quiet interviews %d)",
				prop.ID, prop.Confidence, prop.InterviewsWithoutNewEvidence))
			continue
		}
		prop.Status = models.StatusWeak
		st.touched[prop.ID] = true
		report.Pruned = append(report.Pruned, prop.ID)
	}
}

// recomputeConfidence recalculates confidence on every proposition whose
// evidence sets changed this pass.
func (r *Reconciler) recomputeConfidence(st *workingState) {
	for _, p := range st.props {
		if !st.touched[p.ID] || p.Status == models.StatusMerged {
			continue
		}
		p.Confidence = confidence(p, st.evidenceInterview)
	}
}

// confidence implements |supp| / (|supp| + |contra|) with the
// single-interview penalty, floored at 0.
func confidence(p *models.Proposition, evidenceInterview map[string]string) float64 {
	supp, contra := len(p.SupportingEvidence), len(p.ContradictingEvidence)
	if supp+contra == 0 {
		return 0
	}
	conf := float64(supp) / float64(supp+contra)
	if distinctInterviews(evidenceInterview, p.SupportingEvidence, p.ContradictingEvidence) == 1 {
		conf -= singleInterviewPenalty
		if conf < 0 {
			conf = 0
		}
	}
	return conf
}

func distinctInterviews(evidenceInterview map[string]string, sets ...[]string) int {
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, id := range set {
			if iv, ok := evidenceInterview[id]; ok && iv != "" {
				seen[iv] = true
			}
		}
	}
	return len(seen)
}

// applyStatusTransitions walks every live proposition through the status
// ladder. Rules chain within one pass, so a newborn can climb from untested
// to confirmed when the evidence warrants it.
func (r *Reconciler) applyStatusTransitions(st *workingState) {
	for _, p := range st.props {
		if !p.IsLive() {
			continue
		}
		if p.Status == models.StatusUntested && len(p.SupportingEvidence)+len(p.ContradictingEvidence) > 0 {
			p.Status = models.StatusExploring
		}
		if p.Status == models.StatusExploring && p.Confidence >= confirmThreshold &&
			len(p.SupportingEvidence) >= 2 &&
			distinctInterviews(st.evidenceInterview, p.SupportingEvidence) >= 2 {
			p.Status = models.StatusConfirmed
		}
		if (p.Status == models.StatusExploring || p.Status == models.StatusConfirmed) &&
			len(p.ContradictingEvidence) > 0 && p.Confidence < confirmThreshold {
			p.Status = models.StatusChallenged
		}
		if p.Status == models.StatusConfirmed && p.Confidence >= saturateThreshold &&
			p.InterviewsWithoutNewEvidence >= 2 {
			p.Status = models.StatusSaturated
		}
	}
}

// computeMetrics derives the convergence score, novelty rate and mode from
// the post-transition proposition set.
func (r *Reconciler) computeMetrics(st *workingState, newEvidence []*models.Evidence, appliedMappings []models.EvidenceMapping, newborns []*models.Proposition) models.ProjectMetrics {
	settled, active := 0, 0
	for _, p := range st.props {
		if !p.CountsForConvergence() {
			continue
		}
		active++
		if p.Status == models.StatusConfirmed || p.Status == models.StatusSaturated {
			settled++
		}
	}
	convergence := 0.0
	if active > 0 {
		convergence = float64(settled) / float64(active)
	}

	novelty := noveltyRate(newEvidence, appliedMappings, newborns)

	mode := models.ModeDivergent
	if convergence >= r.cfg.ConvergenceScoreThreshold && novelty <= r.cfg.NoveltyRateThreshold {
		mode = models.ModeConvergent
	}
	return models.ProjectMetrics{
		ConvergenceScore: convergence,
		NoveltyRate:      novelty,
		Mode:             mode,
	}
}

// noveltyRate is the fraction of this interview's evidence that landed on a
// proposition born in the same diff (merge survivors do not count: they are
// structural, not discoveries).
func noveltyRate(newEvidence []*models.Evidence, appliedMappings []models.EvidenceMapping, newborns []*models.Proposition) float64 {
	if len(newEvidence) == 0 {
		return 0
	}
	newbornIDs := make(map[string]bool, len(newborns))
	for _, p := range newborns {
		newbornIDs[p.ID] = true
	}
	fresh := make(map[string]bool, len(newEvidence))
	for _, e := range newEvidence {
		fresh[e.ID] = true
	}
	triggered := make(map[string]bool)
	for _, m := range appliedMappings {
		if fresh[m.EvidenceRef] && newbornIDs[m.PropositionID] {
			triggered[m.EvidenceRef] = true
		}
	}
	return float64(len(triggered)) / float64(len(newEvidence))
}

// assembleStoreDiff gathers everything one atomic commit needs.
func (r *Reconciler) assembleStoreDiff(snap *models.Snapshot, st *workingState, newEvidence []*models.Evidence, newborns, mergeTargets []*models.Proposition, interview *models.Interview, metrics models.ProjectMetrics, report *Report) *models.StoreDiff {
	sd := &models.StoreDiff{
		NewEvidence:      newEvidence,
		Interview:        interview,
		Metrics:          &metrics,
		MarkConversation: interview.ConversationID,
	}
	sd.NewPropositions = append(sd.NewPropositions, newborns...)
	sd.NewPropositions = append(sd.NewPropositions, mergeTargets...)

	for _, p := range st.props {
		if st.born[p.ID] {
			continue
		}
		if propositionChanged(st.orig[p.ID], p) {
			sd.UpdatedPropositions = append(sd.UpdatedPropositions, p)
			report.UpdatedIDs = append(report.UpdatedIDs, p.ID)
		}
	}

	if snap.Project.Report != "" {
		stale := true
		sd.ReportStale = &stale
	}
	return sd
}

func propositionChanged(orig, cur *models.Proposition) bool {
	if orig == nil {
		return true
	}
	return orig.Status != cur.Status ||
		orig.Confidence != cur.Confidence ||
		orig.MergedInto != cur.MergedInto ||
		orig.InterviewsWithoutNewEvidence != cur.InterviewsWithoutNewEvidence ||
		orig.LastUpdatedInterview != cur.LastUpdatedInterview ||
		!slices.Equal(orig.SupportingEvidence, cur.SupportingEvidence) ||
		!slices.Equal(orig.ContradictingEvidence, cur.ContradictingEvidence)
}

// resolveRef resolves a symbolic or committed evidence id.
func resolveRef(ref, symbolicPrefix string, refs map[string]string, committed map[string]string) (string, bool) {
	if id, ok := refs[ref]; ok {
		return id, true
	}
	if strings.HasPrefix(ref, symbolicPrefix) {
		return "", false
	}
	if _, ok := committed[ref]; ok {
		return ref, true
	}
	return "", false
}

// resolveProposition resolves a symbolic ref or committed proposition id.
func resolveProposition(ref string, refs map[string]string, byID map[string]*models.Proposition) (*models.Proposition, bool) {
	if id, ok := refs[ref]; ok {
		ref = id
	}
	p, ok := byID[ref]
	return p, ok
}
