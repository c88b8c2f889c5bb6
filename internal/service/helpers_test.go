package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

var errBackendDown = errors.New("records api unavailable")

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func ptrUint(v uint) *uint {
	return &v
}

func ptrString(v string) *string {
	return &v
}

// memoryBackend is an in-memory records API with failure injection.
type memoryBackend struct {
	mu          sync.Mutex
	assignments map[uint]models.Assignment
	submissions map[uint]models.Submission
	assessments []models.CompetencyAssessment
	patches     map[uint][]backend.SubmissionPatch
	areas       map[uint]cbc.AreaNode
	quizzes     []models.QuizSubmission

	failOutcomes   map[uint]int
	failPatches    int
	quizErr        error
	curriculumHits int

	// When gate is set CreateAssessment signals entered and waits for gate.
	gate    chan struct{}
	entered chan struct{}
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		assignments:  make(map[uint]models.Assignment),
		submissions:  make(map[uint]models.Submission),
		patches:      make(map[uint][]backend.SubmissionPatch),
		areas:        make(map[uint]cbc.AreaNode),
		failOutcomes: make(map[uint]int),
	}
}

func (m *memoryBackend) addAssignment(assignment models.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[assignment.ID] = assignment
}

func (m *memoryBackend) addSubmission(submission models.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusPending
	}
	m.submissions[submission.ID] = submission
}

func (m *memoryBackend) submission(id uint) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions[id]
}

func (m *memoryBackend) rows() []models.CompetencyAssessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.CompetencyAssessment(nil), m.assessments...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryBackend) rowsFor(outcomeID uint) int {
	count := 0
	for _, row := range m.rows() {
		if row.LearningOutcomeID == outcomeID {
			count++
		}
	}
	return count
}

func (m *memoryBackend) GetAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, backend.ErrNotFound
	}
	return assignment, nil
}

func (m *memoryBackend) ListSubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Submission, 0)
	for _, submission := range m.submissions {
		if submission.AssignmentID == assignmentID {
			out = append(out, submission)
		}
	}
	return out, nil
}

func (m *memoryBackend) CreateAssessment(ctx context.Context, assessment *models.CompetencyAssessment) error {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if remaining := m.failOutcomes[assessment.LearningOutcomeID]; remaining > 0 {
		m.failOutcomes[assessment.LearningOutcomeID] = remaining - 1
		return errBackendDown
	}
	assessment.ID = uint(len(m.assessments) + 1)
	m.assessments = append(m.assessments, *assessment)
	return nil
}

func (m *memoryBackend) PatchSubmission(ctx context.Context, id uint, patch backend.SubmissionPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPatches > 0 {
		m.failPatches--
		return errBackendDown
	}
	submission, ok := m.submissions[id]
	if !ok {
		return backend.ErrNotFound
	}
	if patch.Status != nil {
		submission.Status = *patch.Status
	}
	if patch.CompetencyLevel != nil {
		level := *patch.CompetencyLevel
		submission.CompetencyLevel = &level
	}
	if patch.CompetencyComment != nil {
		submission.CompetencyComment = *patch.CompetencyComment
	}
	if patch.GradedBy != nil {
		submission.GradedBy = patch.GradedBy
	}
	if patch.GradedAt != nil {
		submission.GradedAt = patch.GradedAt
	}
	m.submissions[id] = submission
	m.patches[id] = append(m.patches[id], patch)
	return nil
}

func (m *memoryBackend) GetCurriculum(ctx context.Context, learningAreaID uint) (cbc.AreaNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curriculumHits++
	area, ok := m.areas[learningAreaID]
	if !ok {
		return cbc.AreaNode{}, backend.ErrNotFound
	}
	return area, nil
}

func (m *memoryBackend) ListAssessments(ctx context.Context, query backend.AssessmentQuery) ([]models.CompetencyAssessment, error) {
	out := make([]models.CompetencyAssessment, 0)
	for _, row := range m.rows() {
		if row.StudentID == query.StudentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryBackend) ListQuizSubmissions(ctx context.Context, query backend.AssessmentQuery) ([]models.QuizSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quizErr != nil {
		return nil, m.quizErr
	}
	out := make([]models.QuizSubmission, 0)
	for _, submission := range m.quizzes {
		if submission.StudentID == query.StudentID {
			out = append(out, submission)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GradedEvent
}

func (p *recordingPublisher) PublishGraded(ctx context.Context, event GradedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type recordingInvalidator struct {
	mu       sync.Mutex
	students []uint
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, studentID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students = append(r.students, studentID)
	return nil
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (r *recordingActivity) Record(ctx context.Context, entry ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingActivity) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Action)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []Toast
}

func (n *recordingNotifier) Toast(ctx context.Context, toast Toast) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.toasts))
	for _, toast := range n.toasts {
		out = append(out, toast.Title)
	}
	return out
}

// seedGrading stores an assignment testing outcome 5 with primary outcome 7
// and one pending submission per student, submitted a minute apart.
func seedGrading(store *memoryBackend, students ...uint) models.Assignment {
	assignment := models.Assignment{
		ID:               1,
		Title:            "Fractions worksheet",
		PrimaryOutcomeID: ptrUint(7),
		TestedOutcomeIDs: []uint{5},
	}
	store.addAssignment(assignment)

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, studentID := range students {
		store.addSubmission(models.Submission{
			ID:           100 + studentID,
			AssignmentID: assignment.ID,
			StudentID:    studentID,
			SubmittedAt:  base.Add(time.Duration(i) * time.Minute),
			Content:      "my answer",
			Student:      &models.Student{ID: studentID, Name: "Student " + string(rune('A'+i))},
		})
	}
	return assignment
}
