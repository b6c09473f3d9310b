package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eidetic-ai/eidetic/pkg/agent/prompt"
	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/llm"
	"github.com/eidetic-ai/eidetic/pkg/models"
)

// Synthesizer turns the full knowledge base into a markdown research report.
// Unlike the other agents it wants prose, so it calls Chat rather than
// ChatJSON and the response is used verbatim.
type Synthesizer struct {
	oracle llm.Oracle
	cfg    *config.AgentRoleConfig
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer. Panics on nil dependencies
// (programmer error).
func NewSynthesizer(oracle llm.Oracle, cfg *config.AgentRoleConfig, logger *slog.Logger) *Synthesizer {
	if oracle == nil {
		panic("NewSynthesizer: oracle must not be nil")
	}
	if cfg == nil {
		panic("NewSynthesizer: cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		oracle: oracle,
		cfg:    cfg,
		logger: logger.With("agent", config.RoleSynthesizer),
	}
}

// WriteReport produces the markdown report for the whole project, retired
// propositions included.
func (s *Synthesizer) WriteReport(ctx context.Context, snap *models.Snapshot) (string, error) {
	system, user, err := prompt.BuildSynthesis(snap)
	if err != nil {
		return "", fmt.Errorf("failed to build synthesis prompt: %w", err)
	}

	ctx, cancel := withRoleTimeout(ctx, s.cfg)
	defer cancel()

	report, err := s.oracle.Chat(ctx, roleRequest(s.cfg, system, user))
	if err != nil {
		return "", fmt.Errorf("synthesis call failed: %w", err)
	}
	report = strings.TrimSpace(report)
	if report == "" {
		return "", fmt.Errorf("synthesis returned an empty report")
	}

	s.logger.Info("report synthesized",
		"project_id", snap.Project.ID,
		"report_bytes", len(report))
	return report, nil
}
