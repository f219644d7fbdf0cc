package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/internal/models"
)

func warmRoster() *models.Roster {
	return &models.Roster{
		Students: []models.Student{{ID: "ST1"}, {ID: "ST2"}, {ID: "ST3"}},
		Teachers: []models.Teacher{{ID: "T1"}, {ID: "T2"}},
		Sections: []models.Section{
			{ID: "S1", CourseID: "Algebra", TeacherID: "T1", Capacity: 2},
			{ID: "S2", CourseID: "Algebra", TeacherID: "T2", Capacity: 2},
			{ID: "S3", CourseID: "Biology", TeacherID: "T1", Capacity: 1},
		},
		Periods: []string{"R1", "R2"},
		Preferences: []models.StudentPreference{
			{StudentID: "ST1", Courses: []string{"Algebra", "Biology"}},
			{StudentID: "ST2", Courses: []string{"Algebra"}},
			{StudentID: "ST3", Courses: []string{"Algebra", "Biology"}},
		},
	}
}

func TestGenerateFillsSectionsInOrder(t *testing.T) {
	g := NewWarmStartGenerator(nil)
	warm := g.Generate(warmRoster())

	// first two Algebra requests land in S1, the third spills to S2
	assert.True(t, warm.Assigned("ST1", "S1"))
	assert.True(t, warm.Assigned("ST2", "S1"))
	assert.True(t, warm.Assigned("ST3", "S2"))

	// Biology has one seat, ST1 got it, ST3's request stays unmet
	assert.True(t, warm.Assigned("ST1", "S3"))
	assert.False(t, warm.Assigned("ST3", "S3"))

	assert.Equal(t, 4, warm.AssignedCount())
}

func TestGenerateToleratesExcessDemand(t *testing.T) {
	roster := warmRoster()
	for i := 0; i < 20; i++ {
		roster.Preferences = append(roster.Preferences, models.StudentPreference{
			StudentID: "EXTRA", Courses: []string{"Biology"},
		})
	}

	g := NewWarmStartGenerator(nil)
	require.NotPanics(t, func() {
		warm := g.Generate(roster)
		assert.LessOrEqual(t, warm.AssignedCount(), 5)
	})
}

func TestGeneratePeriodHintsAvoidTeacherDoubleBooking(t *testing.T) {
	g := NewWarmStartGenerator(nil)
	warm := g.Generate(warmRoster())

	// T1 teaches S1 and S3, so the hints must use different periods
	p1, ok1 := warm.Period("S1")
	p3, ok3 := warm.Period("S3")
	require.True(t, ok1)
	require.True(t, ok3)
	assert.NotEqual(t, p1, p3)
}

func TestGeneratePeriodHintsRespectUnavailability(t *testing.T) {
	roster := warmRoster()
	roster.Unavailability = []models.TeacherUnavailability{
		{TeacherID: "T2", Periods: []string{"R1"}},
	}

	g := NewWarmStartGenerator(nil)
	warm := g.Generate(roster)

	p2, ok := warm.Period("S2")
	require.True(t, ok)
	assert.Equal(t, "R2", p2)
}

func TestGeneratePeriodHintsHonorCourseRestrictions(t *testing.T) {
	roster := warmRoster()
	roster.PeriodRestrictions = map[string][]string{"Biology": {"R2"}}

	g := NewWarmStartGenerator(nil)
	warm := g.Generate(roster)

	p3, ok := warm.Period("S3")
	require.True(t, ok)
	assert.Equal(t, "R2", p3)
}
