package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/cbc-grading-api/internal/backend"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

var (
	// ErrSessionNotReady indicates the session has not finished loading.
	ErrSessionNotReady = errors.New("grading session is not ready")
	// ErrSessionClosed indicates the session was closed.
	ErrSessionClosed = errors.New("grading session closed")
	// ErrQueueEmpty indicates there is no student left to grade.
	ErrQueueEmpty = errors.New("no submissions awaiting grading")
	// ErrNoSelection indicates commit was requested before a level was chosen.
	ErrNoSelection = errors.New("select a competency level first")
	// ErrCommitInFlight indicates a commit for the same submission is still running.
	ErrCommitInFlight = errors.New("a commit for this submission is already in progress")
	// ErrStudentNotQueued indicates the student has no pending submission in the session.
	ErrStudentNotQueued = errors.New("student is not in the grading queue")
)

// SessionState is the lifecycle state of a grading session.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateReady      SessionState = "ready"
	StateSubmitting SessionState = "submitting"
	StateComplete   SessionState = "complete"
	StateError      SessionState = "error"
	StateClosed     SessionState = "closed"
)

// KeyAction is what a grading keystroke resolved to.
type KeyAction string

const (
	KeyIgnored          KeyAction = "ignored"
	KeySelectLevel      KeyAction = "select_level"
	KeyCommit           KeyAction = "commit"
	KeyCommitAndAdvance KeyAction = "commit_and_advance"
	KeyNext             KeyAction = "next"
	KeyPrevious         KeyAction = "previous"
)

// Keystroke is a key event forwarded from the grading surface.
type Keystroke struct {
	Key         string
	Ctrl        bool
	Meta        bool
	Shift       bool
	InTextField bool
}

// ResolveKey maps a keystroke to a grading action. Digits 1-4 select EE, ME,
// AE and BE; Ctrl+Enter saves and moves to the next student; Ctrl+Shift+Enter
// saves and keeps the graded entry on screen; the arrow keys navigate.
// Keystrokes typed inside a text field are never taken.
func ResolveKey(stroke Keystroke) (KeyAction, cbc.Level) {
	if stroke.InTextField {
		return KeyIgnored, ""
	}
	if level, ok := cbc.LevelForKey(stroke.Key); ok && !stroke.Ctrl && !stroke.Meta {
		return KeySelectLevel, level
	}
	switch stroke.Key {
	case "Enter":
		if !stroke.Ctrl && !stroke.Meta {
			return KeyIgnored, ""
		}
		if stroke.Shift {
			return KeyCommit, ""
		}
		return KeyCommitAndAdvance, ""
	case "ArrowRight":
		return KeyNext, ""
	case "ArrowLeft":
		return KeyPrevious, ""
	}
	return KeyIgnored, ""
}

type queueEntry struct {
	studentID   uint
	studentName string
	submission  models.Submission
}

type pendingChoice struct {
	level   cbc.Level
	comment string
}

// failedCommit remembers which choice a partial failure was recorded for.
type failedCommit struct {
	choice pendingChoice
	err    *RecordingError
}

// CommitResult describes a grading action the session has recorded.
type CommitResult struct {
	StudentID    uint
	StudentName  string
	SubmissionID uint
	Level        cbc.Level
	Graded       int
	// Completed is set only on the commit that emptied the queue.
	Completed bool
}

// GradingSession drives one teacher's pass over the ungraded submissions of an
// assignment. The queue is local to the session and never shared.
type GradingSession struct {
	mu sync.Mutex

	id        string
	teacherID uint
	backend   backend.GradingBackend
	recorder  AssessmentRecorder
	logger    zerolog.Logger
	now       func() time.Time

	state      SessionState
	assignment models.Assignment
	outcomes   cbc.OutcomeSet
	queue      []queueEntry
	cursor     int
	held       *queueEntry
	resolved   map[uint]struct{}
	choices    map[uint]pendingChoice
	inFlight   map[uint]struct{}
	retries    map[uint]failedCommit
	graded     int
	lastError  string
	openedAt   time.Time
	lastActive time.Time
}

// NewGradingSession creates a session in the loading state.
func NewGradingSession(id string, teacherID uint, gradingBackend backend.GradingBackend, recorder AssessmentRecorder, logger zerolog.Logger) *GradingSession {
	now := time.Now()
	return &GradingSession{
		id:         id,
		teacherID:  teacherID,
		backend:    gradingBackend,
		recorder:   recorder,
		logger:     logger.With().Str("component", "grading_session").Str("session_id", id).Logger(),
		now:        time.Now,
		state:      StateLoading,
		outcomes:   cbc.OutcomeSet{},
		resolved:   make(map[uint]struct{}),
		choices:    make(map[uint]pendingChoice),
		inFlight:   make(map[uint]struct{}),
		retries:    make(map[uint]failedCommit),
		openedAt:   now,
		lastActive: now,
	}
}

// ID returns the session identifier.
func (s *GradingSession) ID() string { return s.id }

// TeacherID returns the teacher who owns the session.
func (s *GradingSession) TeacherID() uint { return s.teacherID }

// AssignmentID returns the assignment being graded.
func (s *GradingSession) AssignmentID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignment.ID
}

// LastActive reports when the session was last touched.
func (s *GradingSession) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Load fetches the assignment and its submissions and builds the queue.
// Loading again refreshes from the server while keeping students already
// graded in this session out of the queue.
func (s *GradingSession) Load(ctx context.Context, assignmentID uint) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateLoading
	s.mu.Unlock()

	assignment, err := s.backend.GetAssignment(ctx, assignmentID)
	if err != nil {
		s.loadFailed(err)
		return fmt.Errorf("load assignment %d: %w", assignmentID, err)
	}

	submissions, err := s.backend.ListSubmissions(ctx, assignmentID)
	if err != nil {
		s.loadFailed(err)
		return fmt.Errorf("load submissions for assignment %d: %w", assignmentID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}

	s.assignment = assignment
	s.outcomes = cbc.ResolveOutcomes(assignment)
	s.queue = buildQueue(submissions, s.resolved)
	s.cursor = 0
	s.held = nil
	s.lastError = ""
	s.touch()
	s.settle()

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("queue", len(s.queue)).
		Int("outcomes", s.outcomes.Len()).
		Msg("grading session loaded")

	return nil
}

func (s *GradingSession) loadFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateError
	s.lastError = err.Error()
}

// buildQueue keeps the latest ungraded submission per student, ordered by
// submission time, skipping students resolved earlier in the session.
func buildQueue(submissions []models.Submission, resolved map[uint]struct{}) []queueEntry {
	latest := make(map[uint]models.Submission, len(submissions))
	for _, submission := range submissions {
		current, ok := latest[submission.StudentID]
		if !ok || submission.SubmittedAt.After(current.SubmittedAt) ||
			(submission.SubmittedAt.Equal(current.SubmittedAt) && submission.ID > current.ID) {
			latest[submission.StudentID] = submission
		}
	}

	queue := make([]queueEntry, 0, len(latest))
	for studentID, submission := range latest {
		if submission.IsGraded() {
			continue
		}
		if _, done := resolved[studentID]; done {
			continue
		}
		name := ""
		if submission.Student != nil {
			name = submission.Student.Name
		}
		queue = append(queue, queueEntry{studentID: studentID, studentName: name, submission: submission})
	}

	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i].submission, queue[j].submission
		if a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.ID < b.ID
		}
		return a.SubmittedAt.Before(b.SubmittedAt)
	})
	return queue
}

// SelectLevel stores a pending choice for a student. Nothing is persisted
// until Commit. A nil comment keeps the comment already entered.
func (s *GradingSession) SelectLevel(studentID uint, level cbc.Level, comment *string) error {
	if !level.Valid() {
		return fmt.Errorf("%w: unknown competency level %q", cbc.ErrInvalidInput, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if !s.holds(studentID) {
		return ErrStudentNotQueued
	}

	choice := s.choices[studentID]
	choice.level = level
	if comment != nil {
		choice.comment = strings.TrimSpace(*comment)
	}
	s.choices[studentID] = choice
	s.touch()
	return nil
}

// SetComment stores the teacher's comment for a student without touching the
// selected level.
func (s *GradingSession) SetComment(studentID uint, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if !s.holds(studentID) {
		return ErrStudentNotQueued
	}
	choice := s.choices[studentID]
	choice.comment = strings.TrimSpace(comment)
	s.choices[studentID] = choice
	s.touch()
	return nil
}

// Commit records the current student's pending choice. On success the student
// leaves the queue; with advance the cursor moves on to the next student,
// otherwise the graded entry stays on screen until the teacher navigates. On
// failure the queue is left untouched and the error is returned; a
// *RecordingError says which writes the next Commit re-issues, as long as the
// teacher keeps the same level and comment. A changed choice writes every
// outcome again.
func (s *GradingSession) Commit(ctx context.Context, advance bool) (CommitResult, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return CommitResult{}, err
	}
	entry, ok := s.currentEntry()
	if !ok {
		s.mu.Unlock()
		return CommitResult{}, ErrQueueEmpty
	}
	choice, chosen := s.choices[entry.studentID]
	if !chosen || !choice.level.Valid() {
		s.mu.Unlock()
		return CommitResult{}, ErrNoSelection
	}
	submissionID := entry.submission.ID
	if _, busy := s.inFlight[submissionID]; busy {
		s.mu.Unlock()
		return CommitResult{}, ErrCommitInFlight
	}
	result := CommitResult{
		StudentID:    entry.studentID,
		StudentName:  entry.studentName,
		SubmissionID: submissionID,
		Level:        choice.level,
	}

	cmd := GradeCommand{
		StudentID:    entry.studentID,
		SubmissionID: submissionID,
		AssignmentID: s.assignment.ID,
		TeacherID:    s.teacherID,
		Level:        choice.level,
		Comment:      choice.comment,
		Evidence:     "Assignment: " + s.assignment.Title,
		Outcomes:     s.outcomes,
	}
	if previous, failed := s.retries[submissionID]; failed {
		if previous.choice == choice {
			cmd = previous.err.Retry(cmd)
		} else {
			delete(s.retries, submissionID)
		}
	}

	s.inFlight[submissionID] = struct{}{}
	s.state = StateSubmitting
	s.touch()
	s.mu.Unlock()

	err := s.recorder.RecordGrade(ctx, cmd)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, submissionID)

	if s.state == StateClosed {
		return result, err
	}

	if err != nil {
		if recErr, ok := IsRecordingError(err); ok {
			s.retries[submissionID] = failedCommit{choice: choice, err: s.mergeRetry(submissionID, recErr)}
		}
		s.lastError = err.Error()
		s.state = StateError
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("grading commit failed")
		return result, err
	}

	delete(s.retries, submissionID)
	delete(s.choices, entry.studentID)
	s.resolved[entry.studentID] = struct{}{}
	s.graded++
	s.lastError = ""
	removed := s.removeFromQueue(entry, choice.level, advance)
	s.settle()
	result.Graded = s.graded
	result.Completed = removed && len(s.queue) == 0
	return result, nil
}

// mergeRetry keeps outcomes that succeeded in earlier attempts out of the
// retry set when a retry itself fails.
func (s *GradingSession) mergeRetry(submissionID uint, recErr *RecordingError) *RecordingError {
	previous, ok := s.retries[submissionID]
	if !ok {
		return recErr
	}
	merged := *recErr
	merged.Succeeded = append(append([]uint{}, previous.err.Succeeded...), recErr.Succeeded...)
	return &merged
}

// removeFromQueue reports whether the entry was still queued.
func (s *GradingSession) removeFromQueue(entry queueEntry, level cbc.Level, advance bool) bool {
	index := -1
	for i := range s.queue {
		if s.queue[i].submission.ID == entry.submission.ID {
			index = i
			break
		}
	}

	wasCurrent := s.held == nil && index >= 0 && index == s.cursor
	if s.held != nil && s.held.submission.ID == entry.submission.ID {
		wasCurrent = true
	}

	if index >= 0 {
		s.queue = append(s.queue[:index], s.queue[index+1:]...)
		if index < s.cursor {
			s.cursor--
		}
	}
	if s.cursor >= len(s.queue) {
		s.cursor = 0
	}

	if !wasCurrent {
		return index >= 0
	}
	if advance {
		s.held = nil
		return index >= 0
	}
	graded := entry
	graded.submission.Status = models.SubmissionStatusGraded
	graded.submission.CompetencyLevel = &level
	s.held = &graded
	return index >= 0
}

// Next moves to the following student, wrapping around.
func (s *GradingSession) Next() error {
	return s.move(1)
}

// Previous moves to the preceding student, wrapping around.
func (s *GradingSession) Previous() error {
	return s.move(-1)
}

func (s *GradingSession) move(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.touch()
	if len(s.queue) == 0 {
		s.held = nil
		return ErrQueueEmpty
	}
	if s.held != nil {
		s.held = nil
		if step > 0 {
			return nil
		}
	}
	s.cursor = (s.cursor + step + len(s.queue)) % len(s.queue)
	return nil
}

// HandleKey applies a keystroke to the session.
func (s *GradingSession) HandleKey(ctx context.Context, stroke Keystroke) (KeyAction, error) {
	action, level := ResolveKey(stroke)
	switch action {
	case KeySelectLevel:
		s.mu.Lock()
		entry, ok := s.currentEntry()
		s.mu.Unlock()
		if !ok {
			return action, ErrQueueEmpty
		}
		return action, s.SelectLevel(entry.studentID, level, nil)
	case KeyCommit:
		_, err := s.Commit(ctx, false)
		return action, err
	case KeyCommitAndAdvance:
		_, err := s.Commit(ctx, true)
		return action, err
	case KeyNext:
		return action, s.Next()
	case KeyPrevious:
		return action, s.Previous()
	}
	return action, nil
}

// Close discards uncommitted choices. Commits already issued still reach the
// records system but no longer update this session.
func (s *GradingSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.choices = make(map[uint]pendingChoice)
	s.queue = nil
	s.held = nil
}

// State returns the current lifecycle state.
func (s *GradingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot renders the session for the grading surface.
func (s *GradingSession) Snapshot() dto.GradingSessionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	response := dto.GradingSessionResponse{
		ID:              s.id,
		AssignmentID:    s.assignment.ID,
		AssignmentTitle: s.assignment.Title,
		State:           string(s.state),
		Outcomes:        s.outcomes.Sorted(),
		Queue:           make([]dto.GradingQueueItem, 0, len(s.queue)),
		Position:        s.cursor,
		Remaining:       len(s.queue),
		GradedCount:     s.graded,
		LastError:       s.lastError,
		OpenedAt:        s.openedAt,
	}
	for _, entry := range s.queue {
		response.Queue = append(response.Queue, s.queueItem(entry))
	}

	if entry, ok := s.currentEntry(); ok {
		current := dto.GradingCurrentItem{
			GradingQueueItem: s.queueItem(entry),
			Content:          entry.submission.Content,
			FileURL:          entry.submission.FileURL,
			Graded:           entry.submission.IsGraded(),
			GradedLevel:      entry.submission.CompetencyLevel,
		}
		if retry, failed := s.retries[entry.submission.ID]; failed {
			current.FailedOutcomes = retry.err.Failed
		}
		response.Current = &current
	}

	return response
}

func (s *GradingSession) queueItem(entry queueEntry) dto.GradingQueueItem {
	item := dto.GradingQueueItem{
		StudentID:    entry.studentID,
		StudentName:  entry.studentName,
		SubmissionID: entry.submission.ID,
		SubmittedAt:  entry.submission.SubmittedAt,
	}
	if choice, ok := s.choices[entry.studentID]; ok {
		if choice.level.Valid() {
			level := choice.level
			item.SelectedLevel = &level
		}
		item.Comment = choice.comment
	}
	_, item.InFlight = s.inFlight[entry.submission.ID]
	return item
}

func (s *GradingSession) currentEntry() (queueEntry, bool) {
	if s.held != nil {
		return *s.held, true
	}
	if len(s.queue) == 0 {
		return queueEntry{}, false
	}
	if s.cursor < 0 || s.cursor >= len(s.queue) {
		s.cursor = 0
	}
	return s.queue[s.cursor], true
}

func (s *GradingSession) holds(studentID uint) bool {
	if s.held != nil && s.held.studentID == studentID {
		return true
	}
	for _, entry := range s.queue {
		if entry.studentID == studentID {
			return true
		}
	}
	return false
}

func (s *GradingSession) usable() error {
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateLoading:
		return ErrSessionNotReady
	}
	if s.state == StateError && s.assignment.ID == 0 {
		return ErrSessionNotReady
	}
	return nil
}

// settle derives the resting state once no commit is outstanding.
func (s *GradingSession) settle() {
	if len(s.inFlight) > 0 {
		s.state = StateSubmitting
		return
	}
	if len(s.queue) == 0 {
		s.state = StateComplete
		return
	}
	s.state = StateReady
}

func (s *GradingSession) touch() {
	s.lastActive = s.now()
}
