package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/dto"
	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

// decisionOracle is the capability the registrar consults for structural
// roster changes. Implementations may fail; the service owns the fallback.
type decisionOracle interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// Heuristic thresholds mirroring the registrar's rule book.
const (
	splitThreshold      = 1.10
	mergeThreshold      = 0.70
	removeThreshold     = 0.25
	minViableSplitRatio = 0.30
)

// DefaultPromptTemplate is used when no prompt file is configured. The
// placeholders are substituted with JSON blocks from the registrar summary.
const DefaultPromptTemplate = `You are a school registrar balancing section enrollment.

Current schedule statistics:
{summary_stats}

Sections outside the target utilization band:
{problem_sections}

Course-level context:
{course_context}

Teacher loads (max {max_teacher_sections} sections each):
{teacher_loads}

Department availability:
{department_summary}

Propose up to {max_changes} actions from SPLIT, MERGE, ADD, REMOVE to bring
every section into the 70%-110% utilization band. Respond with a JSON array of
action objects only.`

// RegistrarService turns a utilization summary into a bounded, validated
// action list, consulting the oracle first and falling back to deterministic
// rules when it fails.
type RegistrarService struct {
	oracle     decisionOracle
	template   string
	maxChanges int
	maxLoad    int
	fallback   bool
	logger     *zap.Logger
}

// NewRegistrarService builds the registrar. A nil oracle forces the
// heuristic path on every call.
func NewRegistrarService(oracle decisionOracle, template string, maxChanges, maxTeacherSections int, fallback bool, logger *zap.Logger) *RegistrarService {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if maxChanges <= 0 {
		maxChanges = 10
	}
	if maxTeacherSections <= 0 {
		maxTeacherSections = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrarService{
		oracle:     oracle,
		template:   template,
		maxChanges: maxChanges,
		maxLoad:    maxTeacherSections,
		fallback:   fallback,
		logger:     logger,
	}
}

// DecideActions returns the validated action list for one iteration. Malformed
// oracle output yields a shorter or empty list without error; an unreachable
// oracle either falls back to heuristics or propagates ORACLE_FAILURE.
func (s *RegistrarService) DecideActions(ctx context.Context, summary *dto.RegistrarSummary) ([]models.Action, error) {
	if s.oracle == nil {
		s.logger.Info("no oracle configured, using heuristic rules")
		return s.HeuristicActions(summary), nil
	}

	prompt, err := s.formatPrompt(summary)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrOracle.Code, appErrors.ErrOracle.Status, "format registrar prompt")
	}

	raw, err := s.oracle.Decide(ctx, prompt)
	if err != nil {
		if !s.fallback {
			return nil, err
		}
		s.logger.Warn("oracle failed, falling back to heuristic rules", zap.Error(err))
		return s.HeuristicActions(summary), nil
	}

	actions := s.parseActions(raw)
	s.logger.Info("registrar proposed actions", zap.Int("count", len(actions)))
	return actions, nil
}

func (s *RegistrarService) formatPrompt(summary *dto.RegistrarSummary) (string, error) {
	blocks := map[string]any{
		"{summary_stats}":      summary.SummaryStats,
		"{problem_sections}":   summary.ProblemSections,
		"{course_context}":     summary.CourseContext,
		"{teacher_loads}":      summary.TeacherLoads,
		"{department_summary}": summary.DepartmentSummary,
	}

	prompt := s.template
	for placeholder, value := range blocks {
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", err
		}
		prompt = strings.ReplaceAll(prompt, placeholder, string(encoded))
	}
	prompt = strings.ReplaceAll(prompt, "{max_teacher_sections}", fmt.Sprintf("%d", s.maxLoad))
	prompt = strings.ReplaceAll(prompt, "{max_changes}", fmt.Sprintf("%d", s.maxChanges))
	return prompt, nil
}

// parseActions decodes and validates the oracle response. Invalid entries are
// skipped, never fatal.
func (s *RegistrarService) parseActions(raw string) []models.Action {
	var decoded []models.Action
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		s.logger.Warn("oracle response is not a valid action array", zap.Error(err))
		return nil
	}

	validated := make([]models.Action, 0, len(decoded))
	for _, action := range decoded {
		if !action.Valid() {
			s.logger.Warn("skipping invalid action",
				zap.String("type", string(action.Type)),
				zap.String("section", action.SectionID))
			continue
		}
		validated = append(validated, action)
		if len(validated) == s.maxChanges {
			break
		}
	}
	return validated
}

// HeuristicActions applies the deterministic rule book: at most one action per
// course, SPLIT or ADD above the band, MERGE below it when a partner keeps the
// combined section in band, REMOVE for critically low orphans.
func (s *RegistrarService) HeuristicActions(summary *dto.RegistrarSummary) []models.Action {
	var actions []models.Action
	courseHandled := make(map[string]bool)

	courseProblems := make(map[string][]dto.ProblemSection)
	for _, section := range summary.ProblemSections {
		courseProblems[section.Course] = append(courseProblems[section.Course], section)
	}

	for _, section := range summary.ProblemSections {
		if len(actions) >= s.maxChanges {
			break
		}
		if courseHandled[section.Course] {
			continue
		}

		util, enrolled, capacity, ok := parseProblemSection(section)
		if !ok {
			continue
		}

		switch {
		case util > splitThreshold:
			// A split only helps when each half keeps a viable enrollment.
			if float64(enrolled) >= float64(capacity)*minViableSplitRatio*2 {
				actions = append(actions, models.Action{
					Type:      models.ActionSplit,
					SectionID: section.SectionID,
					Reason:    fmt.Sprintf("%s utilization with %d students", section.Utilization, enrolled),
				})
			} else {
				actions = append(actions, models.Action{
					Type:   models.ActionAdd,
					Course: section.Course,
					Reason: fmt.Sprintf("over capacity at %s but too few students to split", section.Utilization),
				})
			}
			courseHandled[section.Course] = true

		case util < mergeThreshold:
			if partnerAction, ok := s.mergePartner(section, util, enrolled, capacity, courseProblems[section.Course]); ok {
				actions = append(actions, partnerAction)
				courseHandled[section.Course] = true
				continue
			}
			if util < removeThreshold {
				actions = append(actions, models.Action{
					Type:      models.ActionRemove,
					SectionID: section.SectionID,
					Reason:    fmt.Sprintf("only %s utilization and no merge partner", section.Utilization),
				})
				courseHandled[section.Course] = true
			}
		}
	}

	if len(actions) > s.maxChanges {
		actions = actions[:s.maxChanges]
	}
	return actions
}

func (s *RegistrarService) mergePartner(section dto.ProblemSection, util float64, enrolled, capacity int, peers []dto.ProblemSection) (models.Action, bool) {
	for _, partner := range peers {
		if partner.SectionID == section.SectionID {
			continue
		}
		partnerUtil, partnerEnrolled, partnerCapacity, ok := parseProblemSection(partner)
		if !ok || partnerUtil >= mergeThreshold {
			continue
		}

		combined := enrolled + partnerEnrolled
		avgCapacity := float64(capacity+partnerCapacity) / 2
		if avgCapacity <= 0 {
			continue
		}
		combinedUtil := float64(combined) / avgCapacity
		if combinedUtil < mergeThreshold || combinedUtil > 1.10 {
			continue
		}
		return models.Action{
			Type:       models.ActionMerge,
			SectionIDs: []string{section.SectionID, partner.SectionID},
			Reason:     fmt.Sprintf("both under %.0f%% utilization, combined would be %.0f%%", mergeThreshold*100, combinedUtil*100),
		}, true
	}
	return models.Action{}, false
}

func parseProblemSection(section dto.ProblemSection) (util float64, enrolled, capacity int, ok bool) {
	utilStr := strings.TrimSuffix(section.Utilization, "%")
	if _, err := fmt.Sscanf(utilStr, "%f", &util); err != nil {
		return 0, 0, 0, false
	}
	util /= 100

	if _, err := fmt.Sscanf(section.Enrollment, "%d/%d", &enrolled, &capacity); err != nil {
		return 0, 0, 0, false
	}
	return util, enrolled, capacity, true
}
