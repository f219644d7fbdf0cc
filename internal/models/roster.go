package models

// Student is a scheduling subject. SPED students count against a per-section
// distribution cap.
type Student struct {
	ID   string `json:"id"`
	SPED bool   `json:"sped"`
}

// Teacher owns sections and may be unavailable in some periods.
type Teacher struct {
	ID         string `json:"id"`
	Department string `json:"department"`
}

// Section is one offering of a course. Capacity is the only mutable field
// across iterations; the action processor rewrites the roster between solves.
type Section struct {
	ID        string `json:"section_id"`
	CourseID  string `json:"course_id"`
	TeacherID string `json:"teacher_id"`
	Capacity  int    `json:"capacity"`
}

// StudentPreference lists the courses a student requested. Every requested
// course must yield exactly one section assignment in an accepted solution.
type StudentPreference struct {
	StudentID string   `json:"student_id"`
	Courses   []string `json:"courses"`
}

// TeacherUnavailability lists periods a teacher cannot be scheduled in.
type TeacherUnavailability struct {
	TeacherID string   `json:"teacher_id"`
	Periods   []string `json:"periods"`
}

// Roster is the full normalized input for one solve.
type Roster struct {
	Students       []Student
	Teachers       []Teacher
	Sections       []Section
	Periods        []string
	Preferences    []StudentPreference
	Unavailability []TeacherUnavailability

	// PeriodRestrictions maps a course to the subset of periods its sections
	// may occupy. Courses absent from the map may use any period.
	PeriodRestrictions map[string][]string
}

// CourseSections groups section ids by course, preserving input order.
func (r *Roster) CourseSections() map[string][]string {
	result := make(map[string][]string)
	for _, section := range r.Sections {
		result[section.CourseID] = append(result[section.CourseID], section.ID)
	}
	return result
}

// SectionByID returns the section with the given id, if present.
func (r *Roster) SectionByID(id string) (Section, bool) {
	for _, section := range r.Sections {
		if section.ID == id {
			return section, true
		}
	}
	return Section{}, false
}

// AllowedPeriods returns the periods a course's sections may be scheduled in.
func (r *Roster) AllowedPeriods(courseID string) []string {
	if restricted, ok := r.PeriodRestrictions[courseID]; ok {
		return restricted
	}
	return r.Periods
}

// UnavailablePeriods returns the period set blocked for a teacher.
func (r *Roster) UnavailablePeriods(teacherID string) map[string]bool {
	blocked := make(map[string]bool)
	for _, entry := range r.Unavailability {
		if entry.TeacherID != teacherID {
			continue
		}
		for _, period := range entry.Periods {
			blocked[period] = true
		}
	}
	return blocked
}

// TotalRequests counts all (student, requested course) pairs.
func (r *Roster) TotalRequests() int {
	total := 0
	for _, pref := range r.Preferences {
		total += len(pref.Courses)
	}
	return total
}

// CloneSections returns a copy of the section slice safe to mutate.
func (r *Roster) CloneSections() []Section {
	sections := make([]Section, len(r.Sections))
	copy(sections, r.Sections)
	return sections
}

// WithSections returns a shallow copy of the roster carrying a replacement
// section list. Iteration N+1 solves against the mutated roster while all
// other entities stay shared and immutable.
func (r *Roster) WithSections(sections []Section) *Roster {
	clone := *r
	clone.Sections = sections
	return &clone
}
