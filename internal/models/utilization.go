package models

// UtilizationBand buckets a section's enrolled/capacity ratio.
type UtilizationBand string

const (
	BandSeverelyUnder UtilizationBand = "severely_under"
	BandUnder         UtilizationBand = "under"
	BandOptimal       UtilizationBand = "optimal"
	BandOver          UtilizationBand = "over"
	BandSeverelyOver  UtilizationBand = "severely_over"
)

// UtilizationRecord captures one section's utilization. No student identifiers
// appear here; the record is safe to hand to the registrar.
type UtilizationRecord struct {
	SectionID   string  `json:"section_id"`
	Course      string  `json:"course"`
	Capacity    int     `json:"capacity"`
	Enrolled    int     `json:"enrolled"`
	Utilization float64 `json:"utilization"`
}

// UtilizationAnalysis aggregates one iteration's section utilization.
type UtilizationAnalysis struct {
	TotalSections        int                     `json:"total_sections"`
	TotalStudentAssigned int                     `json:"total_students_assigned"`
	UnderTarget          int                     `json:"under_target"`
	Optimal              int                     `json:"optimal_range"`
	OverTarget           int                     `json:"over_target"`
	AverageUtilization   float64                 `json:"average_utilization"`
	Bands                map[UtilizationBand]int `json:"sections_by_utilization"`
	Records              []UtilizationRecord     `json:"-"`
	ProblemSections      []UtilizationRecord     `json:"problem_sections"`
	MinSection           *UtilizationRecord      `json:"min_utilization,omitempty"`
	MaxSection           *UtilizationRecord      `json:"max_utilization,omitempty"`
}

// OutOfBand counts sections outside the target band.
func (a *UtilizationAnalysis) OutOfBand() int {
	return a.UnderTarget + a.OverTarget
}
