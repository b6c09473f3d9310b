// Package safety enforces interviewer-facing script hygiene. Interviews are
// anonymous and single-respondent scoped, so a script must never carry
// references to what "you" said in an earlier conversation, and it must stay
// on the research question instead of drifting into adjacent technical
// territory. The guard sanitizes what it can, replaces what it cannot, and
// reports what it did.
package safety

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Guard statuses recorded on the enforced script.
const (
	StatusOK        = "ok"
	StatusSanitized = "sanitized"
	StatusFallback  = "fallback"
)

// relevanceThreshold is the token-overlap score against the research question
// above which drift vocabulary is tolerated (the text is still on topic).
const relevanceThreshold = 0.18

// personalPatterns flag references to a specific respondent's prior words.
// These are violations: a fresh respondent never "mentioned" anything.
var personalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bearlier\s+you\s+mentioned\b`),
	regexp.MustCompile(`(?i)\byou\s+(said|told|described|shared|mentioned)\b`),
	regexp.MustCompile(`(?i)\bas\s+we\s+discussed\b`),
	regexp.MustCompile(`(?i)\bfrom\s+what\s+you\s+said\b`),
}

// topicDriftPatterns flag vocabulary that pulls the conversation into
// technical detail instead of lived experience.
var topicDriftPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byour\s+project\b`),
	regexp.MustCompile(`(?i)\btech\s+stack\b`),
	regexp.MustCompile(`(?i)\bcodebase\b`),
	regexp.MustCompile(`(?i)\bimplementation\b`),
	regexp.MustCompile(`(?i)\bapi\s+integration\b`),
	regexp.MustCompile(`(?i)\binfrastructure\b`),
}

// sanitizeRules rewrite personal references into aggregate phrasing. Applied
// in order before the remaining personal patterns are checked.
var sanitizeRules = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b[Ee]arlier,\s*you\s+mentioned\b`), "Some participants mentioned"},
	{regexp.MustCompile(`\b[Ee]arlier\s+you\s+mentioned\b`), "Some participants mentioned"},
	{regexp.MustCompile(`\b[Yy]ou\s+(said|told|described|shared|mentioned)\b`), "Some participants reported"},
	{regexp.MustCompile(`\b[Aa]s\s+we\s+discussed\b`), "From previous interviews"},
}

var (
	wordPattern       = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Violation is one flagged script field.
type Violation struct {
	SectionIndex int // -1 for script-level fields
	Field        string
	Reason       string
	Value        string
}

// Result is the outcome of one enforcement pass. Script is safe to render;
// the input script is never modified.
type Result struct {
	Script               *models.InterviewScript
	Status               string
	Violations           []Violation
	TopicRedirectApplied bool
}

// Guard validates and sanitizes interview scripts. Stateless and safe for
// concurrent use; all patterns are compiled at package load.
type Guard struct {
	logger *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Validate reports every personal-reference violation in the script without
// changing it.
func (g *Guard) Validate(script *models.InterviewScript) []Violation {
	var violations []Violation
	check := func(text, field string, sectionIdx int) {
		value := strings.TrimSpace(text)
		if value == "" {
			return
		}
		for _, p := range personalPatterns {
			if p.MatchString(value) {
				violations = append(violations, Violation{
					SectionIndex: sectionIdx,
					Field:        field,
					Reason:       "personal_reference",
					Value:        value,
				})
				return
			}
		}
	}

	check(script.OpeningQuestion, "opening_question", -1)
	check(script.ClosingQuestion, "closing_question", -1)
	check(script.Wildcard, "wildcard", -1)
	for i, sec := range script.Sections {
		check(sec.MainQuestion, "main_question", i)
		check(sec.Context, "context", i)
		for j, probe := range sec.Probes {
			check(probe, fmt.Sprintf("probes[%d]", j), i)
		}
	}
	return violations
}

// Enforce returns a safe copy of the script. Personal references are
// rewritten to aggregate phrasing (or the field is replaced outright when
// rewriting is not enough), off-topic questions are redirected back to the
// research question, section contexts are regenerated from the proposition,
// and a section-less script receives a single generic fallback section.
func (g *Guard) Enforce(script *models.InterviewScript, researchQuestion string, propositions []*models.Proposition) *Result {
	violations := g.Validate(script)
	propIndex := make(map[string]*models.Proposition, len(propositions))
	for _, p := range propositions {
		propIndex[p.ID] = p
	}

	rqTokens := tokenize(researchQuestion)
	redirectApplied := false
	changed := false

	safeSections := make([]models.ScriptSection, 0, len(script.Sections))
	for _, sec := range script.Sections {
		prop := propIndex[sec.PropositionID]
		originalMain := strings.TrimSpace(sec.MainQuestion)

		main := sanitizeText(sec.MainQuestion)
		if hasPersonalReference(main) || main == "" {
			main = fallbackQuestion(prop, researchQuestion)
		}
		if isTopicDrift(main, rqTokens) {
			main = redirectQuestion(researchQuestion)
			redirectApplied = true
		}

		probes := make([]string, 0, len(sec.Probes))
		for _, probe := range sec.Probes {
			if len(probes) == 3 {
				break
			}
			cleaned := sanitizeText(probe)
			if cleaned == "" {
				continue
			}
			if isTopicDrift(cleaned, rqTokens) {
				cleaned = redirectProbe
				redirectApplied = true
			}
			if !slices.Contains(probes, cleaned) {
				probes = append(probes, cleaned)
			}
		}
		if len(probes) == 0 {
			probes = defaultProbes()
		}

		context := safeContext(sec.PropositionID, prop)
		if main != originalMain || context != strings.TrimSpace(sec.Context) || !slices.Equal(probes, firstN(sec.Probes, 3)) {
			changed = true
		}

		safeSections = append(safeSections, models.ScriptSection{
			PropositionID: sec.PropositionID,
			Priority:      sec.Priority,
			Instruction:   sec.Instruction,
			MainQuestion:  main,
			Probes:        probes,
			Context:       context,
		})
	}

	opening := sanitizeText(script.OpeningQuestion)
	if hasPersonalReference(opening) || opening == "" {
		opening = defaultOpening(researchQuestion)
	}
	closing := sanitizeText(script.ClosingQuestion)
	if hasPersonalReference(closing) || closing == "" {
		closing = defaultClosing
	}
	wildcard := sanitizeText(script.Wildcard)
	if hasPersonalReference(wildcard) || wildcard == "" {
		wildcard = defaultWildcard
	}
	if opening != strings.TrimSpace(script.OpeningQuestion) ||
		closing != strings.TrimSpace(script.ClosingQuestion) ||
		wildcard != strings.TrimSpace(script.Wildcard) {
		changed = true
	}

	status := StatusOK
	if len(violations) > 0 || redirectApplied {
		status = StatusSanitized
	}
	if len(safeSections) == 0 {
		status = StatusFallback
		safeSections = []models.ScriptSection{{
			PropositionID: "P000",
			Priority:      models.PriorityHigh,
			Instruction:   models.InstructionExplore,
			MainQuestion:  defaultOpening(researchQuestion),
			Probes:        defaultProbes(),
			Context:       "Fallback section generated by safety guard",
		}}
		changed = true
	}

	safe := *script
	safe.OpeningQuestion = opening
	safe.Sections = safeSections
	safe.ClosingQuestion = closing
	safe.Wildcard = wildcard
	safe.GuardStatus = status

	if status != StatusOK {
		g.logger.Warn("script sanitized",
			"version", script.Version,
			"status", status,
			"violations", len(violations),
			"topic_redirect", redirectApplied)
	} else if changed {
		g.logger.Debug("script normalized without violations", "version", script.Version)
	}

	return &Result{
		Script:               &safe,
		Status:               status,
		Violations:           violations,
		TopicRedirectApplied: redirectApplied,
	}
}

// MarkSummary records a non-ok enforcement outcome on a script's changes
// summary, once. The marker survives on the committed script so the guard's
// interventions stay auditable.
func MarkSummary(summary, status string, violations int) string {
	marker := fmt.Sprintf("safety_guard=%s violations=%d", status, violations)
	if strings.Contains(summary, marker) {
		return summary
	}
	base := strings.TrimSpace(summary)
	if base == "" {
		base = "Script updated"
	}
	return fmt.Sprintf("%s [%s]", base, marker)
}

// sanitizeText rewrites personal references to aggregate phrasing and
// collapses whitespace.
func sanitizeText(text string) string {
	value := strings.TrimSpace(text)
	if value == "" {
		return ""
	}
	for _, rule := range sanitizeRules {
		value = rule.re.ReplaceAllString(value, rule.replacement)
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}

func hasPersonalReference(text string) bool {
	for _, p := range personalPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// isTopicDrift reports whether text uses drift vocabulary while sharing too
// little vocabulary with the research question to count as on-topic.
func isTopicDrift(text string, rqTokens map[string]struct{}) bool {
	if len(rqTokens) > 0 && jaccard(rqTokens, tokenize(text)) >= relevanceThreshold {
		return false
	}
	for _, p := range topicDriftPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(tok)) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func redirectQuestion(researchQuestion string) string {
	return fmt.Sprintf("Could you connect this back to the main research question: '%s'?", researchQuestion)
}

const redirectProbe = "How did this influence your experience with the core research topic?"

func fallbackQuestion(prop *models.Proposition, researchQuestion string) string {
	if prop == nil {
		return defaultOpening(researchQuestion)
	}
	return fmt.Sprintf("How did %s influence your experience with this topic, and what outcomes did it create?", strings.ToLower(prop.Factor))
}

func safeContext(propositionID string, prop *models.Proposition) string {
	if prop == nil {
		return fmt.Sprintf("Explore proposition %s in aggregate, without respondent-specific references.", propositionID)
	}
	return fmt.Sprintf("Aggregate focus for %s: %s -> %s -> %s. Keep wording respondent-agnostic.",
		propositionID, prop.Factor, prop.Mechanism, prop.Outcome)
}

func defaultOpening(researchQuestion string) string {
	return fmt.Sprintf("Could you describe your experience related to this research question: '%s'?", researchQuestion)
}

const defaultClosing = "Before we end, what was the most important part of your experience related to this research question?"

const defaultWildcard = "Is there anything else about your experience with this research topic that we should capture?"

func defaultProbes() []string {
	return []string{
		"Can you give a concrete example related to this topic?",
		"What impact did this have on your experience?",
		"Did this change over time?",
	}
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
