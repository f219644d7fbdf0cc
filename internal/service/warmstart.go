package service

import (
	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
)

// WarmStart is a sparse hint for the solver's MIP start. It may leave demand
// unmet and may carry period clashes; the hard constraints still govern the
// accepted solution.
type WarmStart struct {
	studentSections map[string]map[string]bool
	sectionPeriods  map[string]string
}

// Assigned reports whether the hint places the student in the section.
func (w *WarmStart) Assigned(studentID, sectionID string) bool {
	return w.studentSections[studentID][sectionID]
}

// Period returns the hinted period for a section.
func (w *WarmStart) Period(sectionID string) (string, bool) {
	p, ok := w.sectionPeriods[sectionID]
	return p, ok
}

// AssignedCount counts hinted (student, section) pairs.
func (w *WarmStart) AssignedCount() int {
	total := 0
	for _, sections := range w.studentSections {
		total += len(sections)
	}
	return total
}

// WarmStartGenerator produces greedy seed assignments for the solver.
type WarmStartGenerator struct {
	logger *zap.Logger
}

// NewWarmStartGenerator builds a generator.
func NewWarmStartGenerator(logger *zap.Logger) *WarmStartGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarmStartGenerator{logger: logger}
}

// Generate fills sections greedily in input order and never fails: students
// whose requests cannot be seated stay unassigned in the hint.
func (g *WarmStartGenerator) Generate(roster *models.Roster) *WarmStart {
	warm := &WarmStart{
		studentSections: make(map[string]map[string]bool),
		sectionPeriods:  make(map[string]string),
	}

	courseSections := roster.CourseSections()
	remaining := make(map[string]int, len(roster.Sections))
	for _, section := range roster.Sections {
		remaining[section.ID] = section.Capacity
	}

	unmet := 0
	for _, pref := range roster.Preferences {
		for _, course := range pref.Courses {
			placed := false
			for _, sectionID := range courseSections[course] {
				if remaining[sectionID] <= 0 {
					continue
				}
				if warm.studentSections[pref.StudentID] == nil {
					warm.studentSections[pref.StudentID] = make(map[string]bool)
				}
				warm.studentSections[pref.StudentID][sectionID] = true
				remaining[sectionID]--
				placed = true
				break
			}
			if !placed {
				unmet++
			}
		}
	}

	// Period hints avoid teacher double-booking and teacher unavailability;
	// remaining conflicts are the solver's problem.
	teacherBusy := make(map[string]map[string]bool)
	for _, section := range roster.Sections {
		blocked := roster.UnavailablePeriods(section.TeacherID)
		busy := teacherBusy[section.TeacherID]
		if busy == nil {
			busy = make(map[string]bool)
			teacherBusy[section.TeacherID] = busy
		}

		allowed := roster.AllowedPeriods(section.CourseID)
		chosen := ""
		for _, period := range allowed {
			if blocked[period] || busy[period] {
				continue
			}
			chosen = period
			break
		}
		if chosen == "" && len(allowed) > 0 {
			chosen = allowed[0]
		}
		if chosen != "" {
			warm.sectionPeriods[section.ID] = chosen
			busy[chosen] = true
		}
	}

	g.logger.Debug("warm start generated",
		zap.Int("assigned_pairs", warm.AssignedCount()),
		zap.Int("unmet_requests", unmet),
		zap.Int("scheduled_sections", len(warm.sectionPeriods)))

	return warm
}
