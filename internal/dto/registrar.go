package dto

// SystemMetrics is the headline block of the registrar prompt.
type SystemMetrics struct {
	TotalSections        int    `json:"total_sections"`
	TotalStudents        int    `json:"total_students"`
	SectionsNeedingWork  int    `json:"sections_needing_action"`
	AverageUtilization   string `json:"average_utilization"`
	SectionsUnderTarget  int    `json:"sections_under_target"`
	SectionsOptimal      int    `json:"sections_optimal"`
	SectionsOverTarget   int    `json:"sections_over_target"`
}

// ProblemSection is an anonymized out-of-band section.
type ProblemSection struct {
	SectionID   string `json:"section_id"`
	Course      string `json:"course"`
	Utilization string `json:"utilization"`
	Enrollment  string `json:"enrollment_vs_capacity"`
}

// CourseSectionInfo summarizes one section inside its course context.
type CourseSectionInfo struct {
	SectionID   string `json:"section_id"`
	Utilization string `json:"utilization"`
	Enrollment  string `json:"enrollment"`
}

// CourseAnalysis gives the registrar capacity-vs-demand context per course.
type CourseAnalysis struct {
	Sections           []CourseSectionInfo `json:"sections"`
	SectionCount       int                 `json:"section_count"`
	TotalCapacity      int                 `json:"total_capacity"`
	TotalEnrolled      int                 `json:"total_enrolled"`
	AverageUtilization string              `json:"average_utilization"`
	CapacityBuffer     int                 `json:"capacity_buffer"`
	TeachersAssigned   []string            `json:"teachers_assigned"`
	CanAddSection      bool                `json:"can_add_section"`
}

// TeacherLoad reports a teacher's section count against the configured max.
type TeacherLoad struct {
	ID             string `json:"id"`
	CurrentLoad    int    `json:"current_load"`
	MaxLoad        int    `json:"max_load"`
	AvailableSlots int    `json:"available_slots"`
	Utilization    string `json:"utilization"`
}

// DepartmentSummary aggregates teacher availability per department.
type DepartmentSummary struct {
	TotalTeachers           int    `json:"total_teachers"`
	TotalAvailableSlots     int    `json:"total_available_slots"`
	AverageLoad             string `json:"average_load"`
	TeachersAtCapacity      int    `json:"teachers_at_capacity"`
	TeachersWithAvailability int   `json:"teachers_with_availability"`
}

// RegistrarSummary is the privacy-safe payload handed to the decision oracle.
// It carries aggregates only; individual students never appear.
type RegistrarSummary struct {
	SummaryStats      SystemMetrics                `json:"summary_stats"`
	ProblemSections   []ProblemSection             `json:"problem_sections"`
	CourseContext     map[string]CourseAnalysis    `json:"course_context"`
	TeacherLoads      map[string]TeacherLoad       `json:"teacher_loads"`
	DepartmentSummary map[string]DepartmentSummary `json:"department_summary"`
}
