// Package loader ingests the roster CSV bundle for one optimization run.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
	"github.com/noah-isme/optimo/pkg/export"
)

// Input file names expected inside a run's input directory.
const (
	FileStudents       = "Student_Info.csv"
	FileTeachers       = "Teacher_Info.csv"
	FileSections       = "Sections_Information.csv"
	FilePreferences    = "Student_Preference_Info.csv"
	FileUnavailability = "Teacher_unavailability.csv"
	FilePeriods        = "Period.csv"
)

// Loader reads and validates the roster bundle. Missing required files and
// broken cross references surface as DATA_ERROR.
type Loader struct {
	defaultPeriods []string
	restrictions   map[string][]string
	log            *zap.Logger
}

// NewLoader builds a loader. Periods from Period.csv override defaultPeriods.
func NewLoader(defaultPeriods []string, restrictions map[string][]string, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		defaultPeriods: defaultPeriods,
		restrictions:   restrictions,
		log:            log,
	}
}

// Load reads every roster file under dir and returns the validated roster.
func (l *Loader) Load(dir string) (*models.Roster, error) {
	roster := &models.Roster{PeriodRestrictions: l.restrictions}

	students, err := l.readRequired(dir, FileStudents)
	if err != nil {
		return nil, err
	}
	for _, row := range students.Rows {
		id := strings.TrimSpace(row["Student ID"])
		if id == "" {
			continue
		}
		roster.Students = append(roster.Students, models.Student{
			ID:   id,
			SPED: parseFlag(row["SPED"]),
		})
	}

	teachers, err := l.readRequired(dir, FileTeachers)
	if err != nil {
		return nil, err
	}
	for _, row := range teachers.Rows {
		id := strings.TrimSpace(row["Teacher ID"])
		if id == "" {
			continue
		}
		roster.Teachers = append(roster.Teachers, models.Teacher{
			ID:         id,
			Department: strings.TrimSpace(row["Department"]),
		})
	}

	sections, err := l.readRequired(dir, FileSections)
	if err != nil {
		return nil, err
	}
	for _, row := range sections.Rows {
		id := strings.TrimSpace(row["Section ID"])
		if id == "" {
			continue
		}
		seats, err := strconv.Atoi(strings.TrimSpace(row["# of Seats Available"]))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrData,
				fmt.Sprintf("section %s has invalid seat count %q", id, row["# of Seats Available"]))
		}
		roster.Sections = append(roster.Sections, models.Section{
			ID:        id,
			CourseID:  strings.TrimSpace(row["Course ID"]),
			TeacherID: strings.TrimSpace(row["Teacher Assigned"]),
			Capacity:  seats,
		})
	}

	prefs, err := l.readRequired(dir, FilePreferences)
	if err != nil {
		return nil, err
	}
	for _, row := range prefs.Rows {
		id := strings.TrimSpace(row["Student ID"])
		if id == "" {
			continue
		}
		roster.Preferences = append(roster.Preferences, models.StudentPreference{
			StudentID: id,
			Courses:   splitList(row["Preferred Sections"]),
		})
	}

	roster.Periods = l.loadPeriods(dir)
	roster.Unavailability = l.loadUnavailability(dir)

	if err := validate(roster); err != nil {
		return nil, err
	}

	l.log.Info("roster loaded",
		zap.Int("students", len(roster.Students)),
		zap.Int("teachers", len(roster.Teachers)),
		zap.Int("sections", len(roster.Sections)),
		zap.Int("periods", len(roster.Periods)),
		zap.Int("requests", roster.TotalRequests()))

	return roster, nil
}

func (l *Loader) readRequired(dir, name string) (export.Dataset, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrData.Code, appErrors.ErrData.Status,
			fmt.Sprintf("missing input file %s", name))
	}
	defer f.Close()

	data, err := export.ParseCSV(f)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrData.Code, appErrors.ErrData.Status,
			fmt.Sprintf("parse %s", name))
	}
	return data, nil
}

// loadPeriods prefers Period.csv; absent or empty files fall back to the
// configured period list.
func (l *Loader) loadPeriods(dir string) []string {
	f, err := os.Open(filepath.Join(dir, FilePeriods))
	if err != nil {
		return l.defaultPeriods
	}
	defer f.Close()

	data, err := export.ParseCSV(f)
	if err != nil || len(data.Headers) == 0 || len(data.Rows) == 0 {
		l.log.Warn("period file unreadable, using defaults", zap.String("file", FilePeriods))
		return l.defaultPeriods
	}

	key := data.Headers[0]
	var periods []string
	for _, row := range data.Rows {
		if p := strings.TrimSpace(row[key]); p != "" {
			periods = append(periods, p)
		}
	}
	if len(periods) == 0 {
		return l.defaultPeriods
	}
	return periods
}

// loadUnavailability tolerates a missing or empty file.
func (l *Loader) loadUnavailability(dir string) []models.TeacherUnavailability {
	f, err := os.Open(filepath.Join(dir, FileUnavailability))
	if err != nil {
		l.log.Warn("teacher unavailability not found, assuming all available")
		return nil
	}
	defer f.Close()

	data, err := export.ParseCSV(f)
	if err != nil {
		l.log.Warn("teacher unavailability unreadable, assuming all available", zap.Error(err))
		return nil
	}

	var entries []models.TeacherUnavailability
	for _, row := range data.Rows {
		id := strings.TrimSpace(row["Teacher ID"])
		periods := splitList(row["Unavailable Periods"])
		if id == "" || len(periods) == 0 {
			continue
		}
		entries = append(entries, models.TeacherUnavailability{TeacherID: id, Periods: periods})
	}
	return entries
}

// validate checks cross references between the loaded files.
func validate(roster *models.Roster) error {
	knownTeachers := make(map[string]bool, len(roster.Teachers))
	for _, t := range roster.Teachers {
		knownTeachers[t.ID] = true
	}
	knownStudents := make(map[string]bool, len(roster.Students))
	for _, s := range roster.Students {
		knownStudents[s.ID] = true
	}
	knownCourses := make(map[string]bool)
	for _, section := range roster.Sections {
		knownCourses[section.CourseID] = true
	}

	var unknownTeachers []string
	for _, section := range roster.Sections {
		if section.TeacherID != "" && !knownTeachers[section.TeacherID] {
			unknownTeachers = append(unknownTeachers, section.TeacherID)
		}
	}
	if len(unknownTeachers) > 0 {
		sort.Strings(unknownTeachers)
		return appErrors.Clone(appErrors.ErrData,
			fmt.Sprintf("sections reference unknown teachers: %s", strings.Join(dedupe(unknownTeachers), ", ")))
	}

	for _, pref := range roster.Preferences {
		if !knownStudents[pref.StudentID] {
			return appErrors.Clone(appErrors.ErrData,
				fmt.Sprintf("preferences reference unknown student %s", pref.StudentID))
		}
		for _, course := range pref.Courses {
			if !knownCourses[course] {
				return appErrors.Clone(appErrors.ErrData,
					fmt.Sprintf("student %s requests course %q with no sections", pref.StudentID, course))
			}
		}
	}

	if len(roster.Periods) == 0 {
		return appErrors.Clone(appErrors.ErrData, "no periods defined")
	}
	return nil
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "yes", "true", "y":
		return true
	}
	return false
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || sorted[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
