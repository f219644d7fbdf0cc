package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
	"github.com/noah-isme/optimo/internal/solver"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

// AssignKey identifies an assign[student, section] variable.
type AssignKey struct {
	StudentID string
	SectionID string
}

// ScheduleKey identifies a scheduled[section, period] variable.
type ScheduleKey struct {
	SectionID string
	Period    string
}

// OccupiedKey identifies an occupied[student, section, period] variable.
type OccupiedKey struct {
	StudentID string
	SectionID string
	Period    string
}

// BuiltModel pairs the solver model with the variable maps needed to read a
// solution back into roster terms.
type BuiltModel struct {
	Model     *solver.Model
	Assign    map[AssignKey]solver.VarID
	Scheduled map[ScheduleKey]solver.VarID
	Occupied  map[OccupiedKey]solver.VarID
	Violation map[string]solver.VarID
}

// ScheduleModelBuilder encodes the roster into a mixed-integer model. Capacity
// is the only soft constraint; everything else is hard.
type ScheduleModelBuilder struct {
	spedCap int
	logger  *zap.Logger
}

// NewScheduleModelBuilder builds a model builder with the configured SPED cap.
func NewScheduleModelBuilder(spedCap int, logger *zap.Logger) *ScheduleModelBuilder {
	if spedCap <= 0 {
		spedCap = 12
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleModelBuilder{spedCap: spedCap, logger: logger}
}

// Build registers variables, constraints, objective and the MIP start. A
// student requesting a course with no sections fails fast as a data error.
func (b *ScheduleModelBuilder) Build(roster *models.Roster, warm *WarmStart) (*BuiltModel, error) {
	built := &BuiltModel{
		Model:     solver.NewModel("section_scheduling"),
		Assign:    make(map[AssignKey]solver.VarID),
		Scheduled: make(map[ScheduleKey]solver.VarID),
		Occupied:  make(map[OccupiedKey]solver.VarID),
		Violation: make(map[string]solver.VarID),
	}
	m := built.Model
	courseSections := roster.CourseSections()

	// assign[i,j]: only for sections of requested courses.
	for _, pref := range roster.Preferences {
		for _, course := range pref.Courses {
			sections, ok := courseSections[course]
			if !ok || len(sections) == 0 {
				return nil, appErrors.Clone(appErrors.ErrData,
					fmt.Sprintf("student %s requests course %q with no sections", pref.StudentID, course))
			}
			for _, sectionID := range sections {
				key := AssignKey{pref.StudentID, sectionID}
				built.Assign[key] = m.AddBinary(fmt.Sprintf("assign_%s_%s", pref.StudentID, sectionID))
			}
		}
	}

	// scheduled[j,p]: only for the section's allowed periods.
	for _, section := range roster.Sections {
		for _, period := range roster.AllowedPeriods(section.CourseID) {
			key := ScheduleKey{section.ID, period}
			built.Scheduled[key] = m.AddBinary(fmt.Sprintf("scheduled_%s_%s", section.ID, period))
		}
	}

	// occupied[i,j,p]: only where both parents exist.
	for key := range built.Assign {
		for _, period := range roster.Periods {
			if _, ok := built.Scheduled[ScheduleKey{key.SectionID, period}]; !ok {
				continue
			}
			occKey := OccupiedKey{key.StudentID, key.SectionID, period}
			built.Occupied[occKey] = m.AddBinary(
				fmt.Sprintf("occupied_%s_%s_%s", key.StudentID, key.SectionID, period))
		}
	}

	// violation[j]: unbounded above so saturated demand stays feasible.
	for _, section := range roster.Sections {
		built.Violation[section.ID] = m.AddInteger(fmt.Sprintf("violation_%s", section.ID), 0)
	}

	b.addConstraints(roster, built)

	objective := make([]solver.Term, 0, len(built.Violation))
	for _, section := range roster.Sections {
		objective = append(objective, solver.Term{Var: built.Violation[section.ID], Coef: 1})
	}
	m.SetObjective(objective)

	if warm != nil {
		b.applyWarmStart(built, warm)
	}

	b.logger.Info("model built",
		zap.Int("variables", m.NumVars()),
		zap.Int("constraints", m.NumConstraints()))

	return built, nil
}

func (b *ScheduleModelBuilder) addConstraints(roster *models.Roster, built *BuiltModel) {
	m := built.Model

	// Each section sits in exactly one of its allowed periods.
	for _, section := range roster.Sections {
		var terms []solver.Term
		for _, period := range roster.AllowedPeriods(section.CourseID) {
			if v, ok := built.Scheduled[ScheduleKey{section.ID, period}]; ok {
				terms = append(terms, solver.Term{Var: v, Coef: 1})
			}
		}
		if len(terms) > 0 {
			m.AddConstraint(fmt.Sprintf("one_period_%s", section.ID), terms, solver.Equal, 1)
		}
	}

	// Soft capacity: enrollment <= capacity + violation.
	for _, section := range roster.Sections {
		terms := []solver.Term{{Var: built.Violation[section.ID], Coef: -1}}
		for _, student := range roster.Students {
			if v, ok := built.Assign[AssignKey{student.ID, section.ID}]; ok {
				terms = append(terms, solver.Term{Var: v, Coef: 1})
			}
		}
		m.AddConstraint(fmt.Sprintf("soft_capacity_%s", section.ID),
			terms, solver.LessEqual, float64(section.Capacity))
	}

	// Hard course satisfaction: exactly one section per requested course.
	courseSections := roster.CourseSections()
	for _, pref := range roster.Preferences {
		for _, course := range pref.Courses {
			var terms []solver.Term
			for _, sectionID := range courseSections[course] {
				if v, ok := built.Assign[AssignKey{pref.StudentID, sectionID}]; ok {
					terms = append(terms, solver.Term{Var: v, Coef: 1})
				}
			}
			m.AddConstraint(fmt.Sprintf("course_requirement_%s_%s", pref.StudentID, course),
				terms, solver.Equal, 1)
		}
	}

	// Teacher conflicts: at most one section per teacher per period, and none
	// in periods the teacher is unavailable.
	teacherSections := make(map[string][]string)
	for _, section := range roster.Sections {
		teacherSections[section.TeacherID] = append(teacherSections[section.TeacherID], section.ID)
	}
	for _, teacher := range roster.Teachers {
		blocked := roster.UnavailablePeriods(teacher.ID)
		for _, period := range roster.Periods {
			var terms []solver.Term
			for _, sectionID := range teacherSections[teacher.ID] {
				if v, ok := built.Scheduled[ScheduleKey{sectionID, period}]; ok {
					terms = append(terms, solver.Term{Var: v, Coef: 1})
				}
			}
			if len(terms) == 0 {
				continue
			}
			limit := 1.0
			if blocked[period] {
				limit = 0
			}
			m.AddConstraint(fmt.Sprintf("teacher_conflict_%s_%s", teacher.ID, period),
				terms, solver.LessEqual, limit)
		}
	}

	// Student conflicts: at most one occupied section per period.
	studentPeriodTerms := make(map[string]map[string][]solver.Term)
	for key, v := range built.Occupied {
		byPeriod := studentPeriodTerms[key.StudentID]
		if byPeriod == nil {
			byPeriod = make(map[string][]solver.Term)
			studentPeriodTerms[key.StudentID] = byPeriod
		}
		byPeriod[key.Period] = append(byPeriod[key.Period], solver.Term{Var: v, Coef: 1})
	}
	for _, student := range roster.Students {
		for _, period := range roster.Periods {
			terms := studentPeriodTerms[student.ID][period]
			if len(terms) == 0 {
				continue
			}
			m.AddConstraint(fmt.Sprintf("student_conflict_%s_%s", student.ID, period),
				terms, solver.LessEqual, 1)
		}
	}

	// occupied = assign AND scheduled.
	for key, occ := range built.Occupied {
		assign := built.Assign[AssignKey{key.StudentID, key.SectionID}]
		scheduled := built.Scheduled[ScheduleKey{key.SectionID, key.Period}]
		m.AddConjunction(fmt.Sprintf("link_%s_%s_%s", key.StudentID, key.SectionID, key.Period),
			occ, assign, scheduled)
	}

	// SPED distribution cap per section.
	for _, section := range roster.Sections {
		var terms []solver.Term
		for _, student := range roster.Students {
			if !student.SPED {
				continue
			}
			if v, ok := built.Assign[AssignKey{student.ID, section.ID}]; ok {
				terms = append(terms, solver.Term{Var: v, Coef: 1})
			}
		}
		if len(terms) > 0 {
			m.AddConstraint(fmt.Sprintf("sped_distribution_%s", section.ID),
				terms, solver.LessEqual, float64(b.spedCap))
		}
	}
}

func (b *ScheduleModelBuilder) applyWarmStart(built *BuiltModel, warm *WarmStart) {
	for key, v := range built.Assign {
		if warm.Assigned(key.StudentID, key.SectionID) {
			built.Model.SetStart(v, 1)
		} else {
			built.Model.SetStart(v, 0)
		}
	}
	for key, v := range built.Scheduled {
		if p, ok := warm.Period(key.SectionID); ok && p == key.Period {
			built.Model.SetStart(v, 1)
		} else {
			built.Model.SetStart(v, 0)
		}
	}
	for key, v := range built.Occupied {
		p, ok := warm.Period(key.SectionID)
		if ok && p == key.Period && warm.Assigned(key.StudentID, key.SectionID) {
			built.Model.SetStart(v, 1)
		} else {
			built.Model.SetStart(v, 0)
		}
	}
}
