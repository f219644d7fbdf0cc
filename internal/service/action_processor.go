package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
)

// ActionProcessor applies validated registrar actions to a section roster.
// Actions are independent: one failure never blocks the rest, and every
// outcome lands in the audit log.
type ActionProcessor struct {
	minEnrollmentToKeep int
	mergeBuffer         int
	logger              *zap.Logger
}

// NewActionProcessor builds a processor with the configured safety thresholds.
func NewActionProcessor(minEnrollmentToKeep, mergeBuffer int, logger *zap.Logger) *ActionProcessor {
	if minEnrollmentToKeep <= 0 {
		minEnrollmentToKeep = 5
	}
	if mergeBuffer <= 0 {
		mergeBuffer = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionProcessor{
		minEnrollmentToKeep: minEnrollmentToKeep,
		mergeBuffer:         mergeBuffer,
		logger:              logger,
	}
}

// Apply mutates a copy of the roster's sections per the action list and
// returns the new section slice with the full audit trail. enrollment is the
// current iteration's per-section headcount.
func (p *ActionProcessor) Apply(roster *models.Roster, actions []models.Action, enrollment map[string]int) ([]models.Section, *models.ChangeLog) {
	sections := roster.CloneSections()
	log := &models.ChangeLog{Requested: len(actions)}

	for _, action := range actions {
		var (
			result []models.Section
			detail string
			err    error
		)
		switch action.Type {
		case models.ActionSplit:
			result, detail, err = p.split(sections, action)
		case models.ActionMerge:
			result, detail, err = p.merge(sections, action, enrollment)
		case models.ActionAdd:
			result, detail, err = p.add(sections, action)
		case models.ActionRemove:
			result, detail, err = p.remove(sections, action, enrollment)
		default:
			err = fmt.Errorf("unknown action type %q", action.Type)
		}

		if err != nil {
			log.Failed++
			log.Details = append(log.Details, models.ActionOutcome{
				Action: action,
				Status: models.ActionFailed,
				Detail: err.Error(),
			})
			p.logger.Warn("action rejected",
				zap.String("type", string(action.Type)),
				zap.String("section", action.SectionID),
				zap.Error(err))
			continue
		}

		sections = result
		log.Applied++
		log.Details = append(log.Details, models.ActionOutcome{
			Action: action,
			Status: models.ActionApplied,
			Detail: detail,
		})
		p.logger.Info("action applied",
			zap.String("type", string(action.Type)),
			zap.String("detail", detail))
	}

	return sections, log
}

// split halves the section's capacity into the original id and a sibling with
// an "_B" suffix, floor/ceiling.
func (p *ActionProcessor) split(sections []models.Section, action models.Action) ([]models.Section, string, error) {
	idx := indexOf(sections, action.SectionID)
	if idx < 0 {
		return nil, "", fmt.Errorf("section %s not found", action.SectionID)
	}

	original := sections[idx]
	first := original.Capacity / 2
	second := original.Capacity - first

	sections[idx].Capacity = first
	sibling := original
	sibling.ID = original.ID + "_B"
	sibling.Capacity = second
	sections = append(sections, sibling)

	return sections, fmt.Sprintf("split %s into capacities %d and %d", original.ID, first, second), nil
}

// merge folds the second section into the first. The surviving capacity is
// the max of both capacities and combined enrollment plus a buffer, so no
// seated student is displaced.
func (p *ActionProcessor) merge(sections []models.Section, action models.Action, enrollment map[string]int) ([]models.Section, string, error) {
	if len(action.SectionIDs) != 2 {
		return nil, "", fmt.Errorf("merge requires exactly 2 section ids, got %d", len(action.SectionIDs))
	}
	firstIdx := indexOf(sections, action.SectionIDs[0])
	secondIdx := indexOf(sections, action.SectionIDs[1])
	if firstIdx < 0 || secondIdx < 0 {
		return nil, "", fmt.Errorf("one or both sections not found: %s", strings.Join(action.SectionIDs, ", "))
	}

	first := sections[firstIdx]
	second := sections[secondIdx]
	if first.CourseID != second.CourseID {
		return nil, "", fmt.Errorf("cannot merge different courses %q and %q", first.CourseID, second.CourseID)
	}

	combined := enrollment[first.ID] + enrollment[second.ID]
	capacity := first.Capacity
	if second.Capacity > capacity {
		capacity = second.Capacity
	}
	if combined+p.mergeBuffer > capacity {
		capacity = combined + p.mergeBuffer
	}

	sections[firstIdx].Capacity = capacity
	sections = append(sections[:secondIdx], sections[secondIdx+1:]...)

	return sections, fmt.Sprintf("merged %s and %s with capacity %d", first.ID, second.ID, capacity), nil
}

// add clones the course's first section as a template under a fresh id.
func (p *ActionProcessor) add(sections []models.Section, action models.Action) ([]models.Section, string, error) {
	var template *models.Section
	for i := range sections {
		if sections[i].CourseID == action.Course {
			template = &sections[i]
			break
		}
	}
	if template == nil {
		return nil, "", fmt.Errorf("no existing sections for course %q to template from", action.Course)
	}

	fresh := *template
	fresh.ID = fmt.Sprintf("S_%s", uuid.NewString()[:8])
	sections = append(sections, fresh)

	return sections, fmt.Sprintf("added section %s for course %s with capacity %d", fresh.ID, fresh.CourseID, fresh.Capacity), nil
}

// remove drops a section only while its enrollment stays below the configured
// keep threshold.
func (p *ActionProcessor) remove(sections []models.Section, action models.Action, enrollment map[string]int) ([]models.Section, string, error) {
	idx := indexOf(sections, action.SectionID)
	if idx < 0 {
		return nil, "", fmt.Errorf("section %s not found", action.SectionID)
	}

	enrolled := enrollment[action.SectionID]
	if enrolled >= p.minEnrollmentToKeep {
		return nil, "", fmt.Errorf("section %s has %d students, too many to remove", action.SectionID, enrolled)
	}

	sections = append(sections[:idx], sections[idx+1:]...)
	return sections, fmt.Sprintf("removed section %s with %d students", action.SectionID, enrolled), nil
}

func indexOf(sections []models.Section, id string) int {
	for i := range sections {
		if sections[i].ID == id {
			return i
		}
	}
	return -1
}
