package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedCurriculum(t *testing.T, db *gorm.DB) models.LearningArea {
	t.Helper()
	grade := models.GradeLevel{Name: "Grade 4", CurriculumType: models.CurriculumCBC, Order: 4, IsActive: true}
	require.NoError(t, db.Create(&grade).Error)

	area := models.LearningArea{Name: "Mathematics", Code: "MATH-G4", GradeLevelID: grade.ID, IsActive: true}
	require.NoError(t, db.Create(&area).Error)

	strand := models.Strand{LearningAreaID: area.ID, Name: "Numbers", Code: "MATH-G4-NUM", Order: 1}
	require.NoError(t, db.Create(&strand).Error)

	subs := []models.SubStrand{
		{StrandID: strand.ID, Name: "Fractions", Code: "MATH-G4-NUM-FRAC", Order: 2},
		{StrandID: strand.ID, Name: "Whole Numbers", Code: "MATH-G4-NUM-WHOLE", Order: 1},
	}
	require.NoError(t, db.Create(&subs).Error)

	outcomes := []models.LearningOutcome{
		{ID: 5, SubStrandID: subs[1].ID, Code: "MATH-G4-NUM-WHOLE-01", Description: "Read numbers", Order: 1},
		{ID: 7, SubStrandID: subs[1].ID, Code: "MATH-G4-NUM-WHOLE-02", Description: "Add numbers", Order: 2},
		{ID: 9, SubStrandID: subs[0].ID, Code: "MATH-G4-NUM-FRAC-01", Description: "Compare fractions", Order: 1},
	}
	require.NoError(t, db.Create(&outcomes).Error)
	return area
}

func TestGradingStoreCurriculumTreeIsOrdered(t *testing.T) {
	db := setupTestDB(t)
	area := seedCurriculum(t, db)
	store := NewGradingStore(db)

	node, err := store.GetCurriculum(context.Background(), area.ID)
	require.NoError(t, err)
	require.Equal(t, "MATH-G4", node.Code)
	require.Len(t, node.Strands, 1)
	require.Len(t, node.Strands[0].SubStrands, 2)
	require.Equal(t, "Whole Numbers", node.Strands[0].SubStrands[0].Name)
	require.Equal(t, []cbc.OutcomeNode{
		{ID: 5, Code: "MATH-G4-NUM-WHOLE-01", Description: "Read numbers"},
		{ID: 7, Code: "MATH-G4-NUM-WHOLE-02", Description: "Add numbers"},
	}, node.Strands[0].SubStrands[0].Outcomes)

	_, err = store.GetCurriculum(context.Background(), 999)
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestGradingStoreAssessmentsAreAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	area := seedCurriculum(t, db)
	store := NewGradingStore(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		for _, outcomeID := range []uint{5, 7} {
			row := models.CompetencyAssessment{
				StudentID:         3,
				LearningOutcomeID: outcomeID,
				CompetencyLevel:   cbc.LevelME,
				TeacherID:         1,
				AssessedAt:        time.Now().UTC(),
			}
			require.NoError(t, store.CreateAssessment(ctx, &row))
			require.NotZero(t, row.ID)
		}
	}

	rows, err := store.ListAssessments(ctx, backend.AssessmentQuery{StudentID: 3, LearningAreaID: area.ID})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	rows, err = store.ListAssessments(ctx, backend.AssessmentQuery{StudentID: 4, LearningAreaID: area.ID})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestGradingStorePatchSubmissionIsPartial(t *testing.T) {
	db := setupTestDB(t)
	store := NewGradingStore(db)
	ctx := context.Background()

	primary := uint(5)
	assignment := models.Assignment{Title: "Place value", PrimaryOutcomeID: &primary}
	require.NoError(t, db.Create(&assignment).Error)

	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    3,
		Status:       models.SubmissionStatusPending,
		Content:      "my answer",
		SubmittedAt:  time.Now().UTC(),
	}
	require.NoError(t, db.Create(&submission).Error)

	status := models.SubmissionStatusGraded
	level := cbc.LevelEE
	require.NoError(t, store.PatchSubmission(ctx, submission.ID, backend.SubmissionPatch{Status: &status, CompetencyLevel: &level}))

	listed, err := store.ListSubmissions(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, models.SubmissionStatusGraded, listed[0].Status)
	require.Equal(t, cbc.LevelEE, *listed[0].CompetencyLevel)
	require.Equal(t, "my answer", listed[0].Content)

	err = store.PatchSubmission(ctx, 999, backend.SubmissionPatch{Status: &status})
	require.ErrorIs(t, err, backend.ErrNotFound)

	_, err = store.ListSubmissions(ctx, 999)
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestGradingStoreQuizSubmissionsOnlyScored(t *testing.T) {
	db := setupTestDB(t)
	area := seedCurriculum(t, db)
	store := NewGradingStore(db)

	quiz := models.Quiz{Title: "Fractions quiz", LearningAreaID: &area.ID, TestedOutcomeIDs: []uint{9}, TotalPoints: 20}
	require.NoError(t, db.Create(&quiz).Error)

	attempts := []models.QuizSubmission{
		{QuizID: quiz.ID, StudentID: 3, Score: 18, Status: models.QuizSubmissionAutoGraded, SubmittedAt: time.Now().UTC()},
		{QuizID: quiz.ID, StudentID: 3, Score: 0, Status: "in_progress", SubmittedAt: time.Now().UTC()},
	}
	require.NoError(t, db.Create(&attempts).Error)

	scored, err := store.ListQuizSubmissions(context.Background(), backend.AssessmentQuery{StudentID: 3, LearningAreaID: area.ID})
	require.NoError(t, err)
	require.Len(t, scored, 1)
	require.Equal(t, []uint{9}, []uint(scored[0].Quiz.TestedOutcomeIDs))
}
