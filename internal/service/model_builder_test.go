package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/internal/models"
	"github.com/noah-isme/optimo/internal/solver"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

func builderRoster() *models.Roster {
	return &models.Roster{
		Students: []models.Student{{ID: "ST1"}, {ID: "ST2", SPED: true}},
		Teachers: []models.Teacher{{ID: "T1"}, {ID: "T2"}},
		Sections: []models.Section{
			{ID: "S1", CourseID: "Algebra", TeacherID: "T1", Capacity: 2},
			{ID: "S2", CourseID: "Algebra", TeacherID: "T2", Capacity: 2},
		},
		Periods: []string{"R1", "R2"},
		Preferences: []models.StudentPreference{
			{StudentID: "ST1", Courses: []string{"Algebra"}},
			{StudentID: "ST2", Courses: []string{"Algebra"}},
		},
	}
}

func constraintNames(m *solver.Model) map[string]solver.Constraint {
	names := make(map[string]solver.Constraint)
	for _, c := range m.Constraints() {
		names[c.Name] = c
	}
	return names
}

func TestBuildVariableFamilies(t *testing.T) {
	b := NewScheduleModelBuilder(12, nil)

	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	// 2 students x 2 sections assign, 2 sections x 2 periods scheduled,
	// 4 assign x 2 periods occupied, 2 violations
	assert.Len(t, built.Assign, 4)
	assert.Len(t, built.Scheduled, 4)
	assert.Len(t, built.Occupied, 8)
	assert.Len(t, built.Violation, 2)
	assert.Equal(t, 4+4+8+2, built.Model.NumVars())
}

func TestBuildFailsFastOnCourseWithoutSections(t *testing.T) {
	roster := builderRoster()
	roster.Preferences = append(roster.Preferences, models.StudentPreference{
		StudentID: "ST1", Courses: []string{"Chemistry"},
	})

	b := NewScheduleModelBuilder(12, nil)
	_, err := b.Build(roster, nil)

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrData))
	assert.Contains(t, err.Error(), "Chemistry")
}

func TestBuildSoftCapacityConstraint(t *testing.T) {
	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	cons := constraintNames(built.Model)
	capS1, ok := cons["soft_capacity_S1"]
	require.True(t, ok)
	assert.Equal(t, solver.LessEqual, capS1.Sense)
	assert.Equal(t, 2.0, capS1.RHS)

	// the violation variable relaxes the bound with coefficient -1
	foundViolation := false
	for _, term := range capS1.Terms {
		if term.Var == built.Violation["S1"] {
			foundViolation = true
			assert.Equal(t, -1.0, term.Coef)
		}
	}
	assert.True(t, foundViolation)
}

func TestBuildHardCourseRequirement(t *testing.T) {
	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	cons := constraintNames(built.Model)
	req, ok := cons["course_requirement_ST1_Algebra"]
	require.True(t, ok)
	assert.Equal(t, solver.Equal, req.Sense)
	assert.Equal(t, 1.0, req.RHS)
	assert.Len(t, req.Terms, 2)
}

func TestBuildOnePeriodPerSection(t *testing.T) {
	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	cons := constraintNames(built.Model)
	one, ok := cons["one_period_S1"]
	require.True(t, ok)
	assert.Equal(t, solver.Equal, one.Sense)
	assert.Equal(t, 1.0, one.RHS)
}

func TestBuildTeacherUnavailabilityZeroesLimit(t *testing.T) {
	roster := builderRoster()
	roster.Unavailability = []models.TeacherUnavailability{
		{TeacherID: "T1", Periods: []string{"R2"}},
	}

	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(roster, nil)
	require.NoError(t, err)

	cons := constraintNames(built.Model)
	blocked, ok := cons["teacher_conflict_T1_R2"]
	require.True(t, ok)
	assert.Equal(t, 0.0, blocked.RHS)

	open, ok := cons["teacher_conflict_T1_R1"]
	require.True(t, ok)
	assert.Equal(t, 1.0, open.RHS)
}

func TestBuildSPEDDistributionCap(t *testing.T) {
	b := NewScheduleModelBuilder(3, nil)
	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	cons := constraintNames(built.Model)
	sped, ok := cons["sped_distribution_S1"]
	require.True(t, ok)
	assert.Equal(t, solver.LessEqual, sped.Sense)
	assert.Equal(t, 3.0, sped.RHS)
	// only ST2 is SPED
	assert.Len(t, sped.Terms, 1)
}

func TestBuildObjectiveSumsViolations(t *testing.T) {
	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(builderRoster(), nil)
	require.NoError(t, err)

	objective := built.Model.Objective()
	require.Len(t, objective, 2)
	for _, term := range objective {
		assert.Equal(t, 1.0, term.Coef)
	}
}

func TestBuildAppliesWarmStart(t *testing.T) {
	roster := builderRoster()
	g := NewWarmStartGenerator(nil)
	warm := g.Generate(roster)

	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(roster, warm)
	require.NoError(t, err)

	starts := built.Model.Starts()
	// every variable family receives a hint, set or cleared
	assert.Len(t, starts, len(built.Assign)+len(built.Scheduled)+len(built.Occupied))

	v := built.Assign[AssignKey{StudentID: "ST1", SectionID: "S1"}]
	assert.Equal(t, 1.0, starts[v])
}

func TestBuildPeriodRestrictionLimitsScheduledVars(t *testing.T) {
	roster := builderRoster()
	roster.PeriodRestrictions = map[string][]string{"Algebra": {"R1"}}

	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(roster, nil)
	require.NoError(t, err)

	assert.Len(t, built.Scheduled, 2)
	_, hasR2 := built.Scheduled[ScheduleKey{SectionID: "S1", Period: "R2"}]
	assert.False(t, hasR2)
	// occupied vars follow the surviving scheduled vars
	assert.Len(t, built.Occupied, 4)
}
