package cbc

import "time"

// OutcomeStatus is the latest known standing of one outcome.
type OutcomeStatus struct {
	OutcomeID   uint       `json:"outcome_id"`
	Code        string     `json:"code"`
	Description string     `json:"description"`
	Level       *Level     `json:"level"`
	AssessedAt  *time.Time `json:"assessed_at"`
	Mastered    bool       `json:"mastered"`
}

// SubStrandReport summarises a sub-strand.
type SubStrandReport struct {
	SubStrandID uint            `json:"sub_strand_id"`
	Name        string          `json:"name"`
	Mastery     Mastery         `json:"mastery"`
	Outcomes    []OutcomeStatus `json:"outcomes"`
}

// StrandReport summarises a strand.
type StrandReport struct {
	StrandID   uint              `json:"strand_id"`
	Name       string            `json:"name"`
	Mastery    Mastery           `json:"mastery"`
	SubStrands []SubStrandReport `json:"sub_strands"`
}

// AreaReport summarises a learning area for one student.
type AreaReport struct {
	LearningAreaID uint           `json:"learning_area_id"`
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	Mastery        Mastery        `json:"mastery"`
	Breakdown      Breakdown      `json:"breakdown"`
	Strands        []StrandReport `json:"strands"`
}

// BuildReports produces one report per learning area in curriculum.
func BuildReports(evidence []Evidence, curriculum *Curriculum) []AreaReport {
	latest := LatestByOutcome(evidence)
	reports := make([]AreaReport, 0, len(curriculum.Areas()))
	for _, area := range curriculum.Areas() {
		reports = append(reports, buildAreaReport(area, latest, curriculum))
	}
	return reports
}

func buildAreaReport(area AreaNode, latest map[uint]Evidence, curriculum *Curriculum) AreaReport {
	report := AreaReport{
		LearningAreaID: area.ID,
		Code:           area.Code,
		Name:           area.Name,
		Mastery:        aggregateLatest(latest, curriculum, LearningArea(area.ID)),
		Breakdown:      Breakdown{},
		Strands:        make([]StrandReport, 0, len(area.Strands)),
	}

	for _, strand := range area.Strands {
		strandReport := StrandReport{
			StrandID:   strand.ID,
			Name:       strand.Name,
			Mastery:    aggregateLatest(latest, curriculum, Strand(strand.ID)),
			SubStrands: make([]SubStrandReport, 0, len(strand.SubStrands)),
		}
		for _, sub := range strand.SubStrands {
			subReport := SubStrandReport{
				SubStrandID: sub.ID,
				Name:        sub.Name,
				Mastery:     aggregateLatest(latest, curriculum, SubStrand(sub.ID)),
				Outcomes:    make([]OutcomeStatus, 0, len(sub.Outcomes)),
			}
			for _, outcome := range sub.Outcomes {
				status := OutcomeStatus{
					OutcomeID:   outcome.ID,
					Code:        outcome.Code,
					Description: outcome.Description,
				}
				if item, ok := latest[outcome.ID]; ok {
					level := item.Level
					assessedAt := item.AssessedAt
					status.Level = &level
					status.AssessedAt = &assessedAt
					status.Mastered = Mastered(level)
					report.Breakdown[level]++
				}
				subReport.Outcomes = append(subReport.Outcomes, status)
			}
			strandReport.SubStrands = append(strandReport.SubStrands, subReport)
		}
		report.Strands = append(report.Strands, strandReport)
	}

	return report
}
