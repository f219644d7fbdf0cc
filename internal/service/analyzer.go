package service

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/dto"
	"github.com/noah-isme/optimo/internal/models"
)

// UtilizationAnalyzer scores a solved schedule and builds the privacy-safe
// registrar summary. It holds no state between calls: analyzing the same
// schedule twice yields identical results.
type UtilizationAnalyzer struct {
	minTarget          float64
	maxTarget          float64
	tolerance          float64
	maxTeacherSections int
	logger             *zap.Logger
}

// NewUtilizationAnalyzer builds an analyzer. tolerance is the fraction of
// sections allowed out of band before needs-optimization triggers; zero keeps
// the strict policy.
func NewUtilizationAnalyzer(minTarget, maxTarget, tolerance float64, maxTeacherSections int, logger *zap.Logger) *UtilizationAnalyzer {
	if minTarget <= 0 {
		minTarget = 0.70
	}
	if maxTarget <= 0 {
		maxTarget = 1.10
	}
	if maxTeacherSections <= 0 {
		maxTeacherSections = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UtilizationAnalyzer{
		minTarget:          minTarget,
		maxTarget:          maxTarget,
		tolerance:          tolerance,
		maxTeacherSections: maxTeacherSections,
		logger:             logger,
	}
}

// Analyze computes per-section and aggregate utilization for one schedule.
func (a *UtilizationAnalyzer) Analyze(roster *models.Roster, schedule *models.SolvedSchedule) *models.UtilizationAnalysis {
	enrollment := schedule.EnrollmentCounts()

	analysis := &models.UtilizationAnalysis{
		TotalSections:        len(roster.Sections),
		TotalStudentAssigned: len(schedule.Assignments),
		Bands:                make(map[models.UtilizationBand]int),
	}

	sum := 0.0
	for _, section := range roster.Sections {
		enrolled := enrollment[section.ID]
		utilization := 0.0
		if section.Capacity > 0 {
			utilization = float64(enrolled) / float64(section.Capacity)
		}
		record := models.UtilizationRecord{
			SectionID:   section.ID,
			Course:      section.CourseID,
			Capacity:    section.Capacity,
			Enrolled:    enrolled,
			Utilization: utilization,
		}
		analysis.Records = append(analysis.Records, record)
		analysis.Bands[a.band(utilization)]++
		sum += utilization

		switch {
		case utilization < a.minTarget:
			analysis.UnderTarget++
			analysis.ProblemSections = append(analysis.ProblemSections, record)
		case utilization > a.maxTarget:
			analysis.OverTarget++
			analysis.ProblemSections = append(analysis.ProblemSections, record)
		default:
			analysis.Optimal++
		}
	}

	if len(analysis.Records) > 0 {
		analysis.AverageUtilization = sum / float64(len(analysis.Records))
		minIdx, maxIdx := 0, 0
		for i, record := range analysis.Records {
			if record.Utilization < analysis.Records[minIdx].Utilization {
				minIdx = i
			}
			if record.Utilization > analysis.Records[maxIdx].Utilization {
				maxIdx = i
			}
		}
		analysis.MinSection = &analysis.Records[minIdx]
		analysis.MaxSection = &analysis.Records[maxIdx]
	}

	a.logger.Debug("utilization analyzed",
		zap.Int("sections", analysis.TotalSections),
		zap.Int("under_target", analysis.UnderTarget),
		zap.Int("optimal", analysis.Optimal),
		zap.Int("over_target", analysis.OverTarget),
		zap.Float64("average", analysis.AverageUtilization))

	return analysis
}

func (a *UtilizationAnalyzer) band(utilization float64) models.UtilizationBand {
	switch {
	case utilization < 0.50:
		return models.BandSeverelyUnder
	case utilization < a.minTarget:
		return models.BandUnder
	case utilization <= a.maxTarget:
		return models.BandOptimal
	case utilization <= 1.50:
		return models.BandOver
	default:
		return models.BandSeverelyOver
	}
}

// Score assigns a scalar quality value; lower is better. Over-capacity
// sections weigh heavier than under-filled ones.
func (a *UtilizationAnalyzer) Score(analysis *models.UtilizationAnalysis) float64 {
	return float64(analysis.UnderTarget)*2 + float64(analysis.OverTarget)*3 - float64(analysis.Optimal)*0.5
}

// NeedsOptimization reports whether another iteration is warranted. With zero
// tolerance any out-of-band section keeps the loop running; a positive
// tolerance stops once the out-of-band fraction drops below it.
func (a *UtilizationAnalyzer) NeedsOptimization(analysis *models.UtilizationAnalysis) bool {
	outOfBand := analysis.OutOfBand()
	if a.tolerance <= 0 {
		return outOfBand > 0
	}
	if analysis.TotalSections == 0 {
		return false
	}
	return float64(outOfBand)/float64(analysis.TotalSections) >= a.tolerance
}

// RegistrarSummary builds the aggregate-only payload for the decision oracle.
func (a *UtilizationAnalyzer) RegistrarSummary(roster *models.Roster, analysis *models.UtilizationAnalysis) *dto.RegistrarSummary {
	summary := &dto.RegistrarSummary{
		SummaryStats: dto.SystemMetrics{
			TotalSections:       analysis.TotalSections,
			TotalStudents:       analysis.TotalStudentAssigned,
			SectionsNeedingWork: analysis.OutOfBand(),
			AverageUtilization:  fmt.Sprintf("%.1f%%", analysis.AverageUtilization*100),
			SectionsUnderTarget: analysis.UnderTarget,
			SectionsOptimal:     analysis.Optimal,
			SectionsOverTarget:  analysis.OverTarget,
		},
		CourseContext:     make(map[string]dto.CourseAnalysis),
		TeacherLoads:      make(map[string]dto.TeacherLoad),
		DepartmentSummary: make(map[string]dto.DepartmentSummary),
	}

	for _, record := range analysis.ProblemSections {
		summary.ProblemSections = append(summary.ProblemSections, dto.ProblemSection{
			SectionID:   record.SectionID,
			Course:      record.Course,
			Utilization: fmt.Sprintf("%.1f%%", record.Utilization*100),
			Enrollment:  fmt.Sprintf("%d/%d", record.Enrolled, record.Capacity),
		})
	}

	recordsBySection := make(map[string]models.UtilizationRecord, len(analysis.Records))
	for _, record := range analysis.Records {
		recordsBySection[record.SectionID] = record
	}

	courseSections := roster.CourseSections()
	courses := make([]string, 0, len(courseSections))
	for course := range courseSections {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	for _, course := range courses {
		entry := dto.CourseAnalysis{SectionCount: len(courseSections[course])}
		teacherSet := make(map[string]bool)
		for _, sectionID := range courseSections[course] {
			record := recordsBySection[sectionID]
			entry.Sections = append(entry.Sections, dto.CourseSectionInfo{
				SectionID:   sectionID,
				Utilization: fmt.Sprintf("%.1f%%", record.Utilization*100),
				Enrollment:  fmt.Sprintf("%d/%d", record.Enrolled, record.Capacity),
			})
			entry.TotalCapacity += record.Capacity
			entry.TotalEnrolled += record.Enrolled
			if section, ok := roster.SectionByID(sectionID); ok {
				teacherSet[section.TeacherID] = true
			}
		}
		avg := 0.0
		if entry.TotalCapacity > 0 {
			avg = float64(entry.TotalEnrolled) / float64(entry.TotalCapacity)
		}
		entry.AverageUtilization = fmt.Sprintf("%.1f%%", avg*100)
		entry.CapacityBuffer = entry.TotalCapacity - entry.TotalEnrolled
		entry.CanAddSection = entry.CapacityBuffer < 0
		for teacher := range teacherSet {
			entry.TeachersAssigned = append(entry.TeachersAssigned, teacher)
		}
		sort.Strings(entry.TeachersAssigned)
		summary.CourseContext[course] = entry
	}

	sectionsPerTeacher := make(map[string]int)
	for _, section := range roster.Sections {
		sectionsPerTeacher[section.TeacherID]++
	}
	deptLoads := make(map[string][]dto.TeacherLoad)
	for _, teacher := range roster.Teachers {
		load := sectionsPerTeacher[teacher.ID]
		entry := dto.TeacherLoad{
			ID:             teacher.ID,
			CurrentLoad:    load,
			MaxLoad:        a.maxTeacherSections,
			AvailableSlots: a.maxTeacherSections - load,
			Utilization:    fmt.Sprintf("%.0f%%", float64(load)/float64(a.maxTeacherSections)*100),
		}
		summary.TeacherLoads[teacher.ID] = entry

		dept := teacher.Department
		if dept == "" {
			dept = "Unknown"
		}
		deptLoads[dept] = append(deptLoads[dept], entry)
	}

	for dept, loads := range deptLoads {
		totalSlots, totalLoad, atCapacity, withSlots := 0, 0, 0, 0
		for _, load := range loads {
			totalSlots += load.AvailableSlots
			totalLoad += load.CurrentLoad
			if load.AvailableSlots <= 0 {
				atCapacity++
			} else {
				withSlots++
			}
		}
		summary.DepartmentSummary[dept] = dto.DepartmentSummary{
			TotalTeachers:            len(loads),
			TotalAvailableSlots:      totalSlots,
			AverageLoad:              fmt.Sprintf("%.1f", float64(totalLoad)/float64(len(loads))),
			TeachersAtCapacity:       atCapacity,
			TeachersWithAvailability: withSlots,
		}
	}

	return summary
}
