package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

var defaultPeriods = []string{"R1", "R2", "R3", "R4", "G1", "G2", "G3", "G4"}

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeValidBundle(t *testing.T, dir string) {
	t.Helper()
	writeInput(t, dir, FileStudents, "Student ID,SPED\nS001,0\nS002,1\n")
	writeInput(t, dir, FileTeachers, "Teacher ID,Department\nT001,Math\nT002,Science\n")
	writeInput(t, dir, FileSections,
		"Section ID,Course ID,Teacher Assigned,# of Seats Available\nALG1_A,Algebra I,T001,25\nBIO_A,Biology,T002,30\n")
	writeInput(t, dir, FilePreferences,
		"Student ID,Preferred Sections\nS001,Algebra I;Biology\nS002,Algebra I\n")
}

func TestLoaderLoadsValidBundle(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	writeInput(t, dir, FileUnavailability, "Teacher ID,Unavailable Periods\nT001,R1;G1\n")

	roster, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.NoError(t, err)

	assert.Len(t, roster.Students, 2)
	assert.True(t, roster.Students[1].SPED)
	assert.Len(t, roster.Teachers, 2)
	assert.Len(t, roster.Sections, 2)
	assert.Equal(t, 25, roster.Sections[0].Capacity)
	assert.Equal(t, defaultPeriods, roster.Periods)
	assert.Equal(t, 3, roster.TotalRequests())

	blocked := roster.UnavailablePeriods("T001")
	assert.True(t, blocked["R1"])
	assert.True(t, blocked["G1"])
	assert.False(t, blocked["R2"])
}

func TestLoaderPeriodFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	writeInput(t, dir, FilePeriods, "period_name\nP1\nP2\nP3\n")

	roster, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, roster.Periods)
}

func TestLoaderMissingUnavailabilityTolerated(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)

	roster, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.NoError(t, err)
	assert.Empty(t, roster.Unavailability)
}

func TestLoaderMissingRequiredFile(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, FileSections)))

	_, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrData))
	assert.Contains(t, err.Error(), FileSections)
}

func TestLoaderUnknownTeacherRejected(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	writeInput(t, dir, FileSections,
		"Section ID,Course ID,Teacher Assigned,# of Seats Available\nALG1_A,Algebra I,T999,25\n")
	writeInput(t, dir, FilePreferences, "Student ID,Preferred Sections\nS001,Algebra I\n")

	_, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrData))
	assert.Contains(t, err.Error(), "T999")
}

func TestLoaderUnknownCourseRejected(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	writeInput(t, dir, FilePreferences, "Student ID,Preferred Sections\nS001,Quantum Basket Weaving\n")

	_, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrData))
	assert.Contains(t, err.Error(), "S001")
	assert.Contains(t, err.Error(), "Quantum Basket Weaving")
}

func TestLoaderInvalidSeatCount(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	writeInput(t, dir, FileSections,
		"Section ID,Course ID,Teacher Assigned,# of Seats Available\nALG1_A,Algebra I,T001,lots\n")

	_, err := NewLoader(defaultPeriods, nil, nil).Load(dir)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrData))
}

func TestLoaderCoursePeriodRestrictions(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)
	restrictions := map[string][]string{"Algebra I": {"R1", "G1"}}

	roster, err := NewLoader(defaultPeriods, restrictions, nil).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "G1"}, roster.AllowedPeriods("Algebra I"))
	assert.Equal(t, defaultPeriods, roster.AllowedPeriods("Biology"))
}
