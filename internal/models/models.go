package models

// All lists the models migrated by the service, parents before children.
func All() []interface{} {
	return []interface{}{
		&GradeLevel{},
		&LearningArea{},
		&Strand{},
		&SubStrand{},
		&LearningOutcome{},
		&Student{},
		&Assignment{},
		&Submission{},
		&CompetencyAssessment{},
		&Quiz{},
		&QuizSubmission{},
		&GradingActivity{},
	}
}
