package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/models"
)

func openSession(t *testing.T, store *memoryBackend) *GradingSession {
	t.Helper()
	recorder := NewAssessmentRecorder(store, testValidator(), testLogger())
	session := NewGradingSession("session-1", 9, store, recorder, testLogger())
	require.NoError(t, session.Load(context.Background(), 1))
	return session
}

func commitErr(ctx context.Context, session *GradingSession, advance bool) error {
	_, err := session.Commit(ctx, advance)
	return err
}

func queueStudents(session *GradingSession) []uint {
	snapshot := session.Snapshot()
	out := make([]uint, 0, len(snapshot.Queue))
	for _, item := range snapshot.Queue {
		out = append(out, item.StudentID)
	}
	return out
}

func currentStudent(t *testing.T, session *GradingSession) uint {
	t.Helper()
	snapshot := session.Snapshot()
	require.NotNil(t, snapshot.Current)
	return snapshot.Current.StudentID
}

func TestSessionLoadBuildsQueueOfLatestPendingSubmissions(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4, 5)
	store.addSubmission(models.Submission{
		ID:           204,
		AssignmentID: 1,
		StudentID:    4,
		SubmittedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	store.addSubmission(models.Submission{
		ID:           106,
		AssignmentID: 1,
		StudentID:    6,
		Status:       models.SubmissionStatusGraded,
		SubmittedAt:  time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
	})

	session := openSession(t, store)
	snapshot := session.Snapshot()

	require.Equal(t, string(StateReady), snapshot.State)
	require.Equal(t, []uint{5, 7}, snapshot.Outcomes)
	require.Equal(t, []uint{3, 5, 4}, queueStudents(session))
	require.Equal(t, uint(204), snapshot.Queue[2].SubmissionID)
	require.Equal(t, uint(3), snapshot.Current.StudentID)
	require.Equal(t, "my answer", snapshot.Current.Content)
}

func TestSessionLoadFailureLeavesErrorState(t *testing.T) {
	store := newMemoryBackend()
	recorder := NewAssessmentRecorder(store, testValidator(), testLogger())
	session := NewGradingSession("session-1", 9, store, recorder, testLogger())

	err := session.Load(context.Background(), 42)
	require.Error(t, err)
	require.Equal(t, StateError, session.State())
	require.ErrorIs(t, session.SelectLevel(3, cbc.LevelME, nil), ErrSessionNotReady)
}

func TestSessionCommitAdvancesAndCompletes(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	session := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, session.SelectLevel(3, cbc.LevelME, ptrString("Well done")))
	require.NoError(t, commitErr(ctx, session, true))

	require.Equal(t, []uint{4}, queueStudents(session))
	require.Equal(t, uint(4), currentStudent(t, session))
	require.Equal(t, StateReady, session.State())
	require.Equal(t, 2, store.rowsFor(5)+store.rowsFor(7))
	require.Equal(t, models.SubmissionStatusGraded, store.submission(103).Status)

	require.NoError(t, session.SelectLevel(4, cbc.LevelEE, nil))
	require.NoError(t, commitErr(ctx, session, true))

	snapshot := session.Snapshot()
	require.Equal(t, string(StateComplete), snapshot.State)
	require.Empty(t, snapshot.Queue)
	require.Nil(t, snapshot.Current)
	require.Equal(t, 2, snapshot.GradedCount)
}

func TestSessionCommitWithoutAdvanceHoldsGradedEntry(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4, 5)
	session := openSession(t, store)

	require.NoError(t, session.SelectLevel(3, cbc.LevelAE, nil))
	require.NoError(t, commitErr(context.Background(), session, false))

	snapshot := session.Snapshot()
	require.Equal(t, []uint{4, 5}, queueStudents(session))
	require.NotNil(t, snapshot.Current)
	require.Equal(t, uint(3), snapshot.Current.StudentID)
	require.True(t, snapshot.Current.Graded)
	require.Equal(t, cbc.LevelAE, *snapshot.Current.GradedLevel)

	require.NoError(t, session.Next())
	require.Equal(t, uint(4), currentStudent(t, session))
}

func TestSessionCommitRequiresSelection(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3)
	session := openSession(t, store)

	require.ErrorIs(t, commitErr(context.Background(), session, true), ErrNoSelection)
	require.Empty(t, store.rows())
	require.ErrorIs(t, session.SelectLevel(99, cbc.LevelME, nil), ErrStudentNotQueued)
	require.ErrorIs(t, session.SelectLevel(3, cbc.Level("XX"), nil), cbc.ErrInvalidInput)
}

func TestSessionNavigationWraps(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4, 5)
	session := openSession(t, store)

	require.NoError(t, session.Previous())
	require.Equal(t, uint(5), currentStudent(t, session))
	require.NoError(t, session.Next())
	require.Equal(t, uint(3), currentStudent(t, session))
	require.NoError(t, session.Next())
	require.Equal(t, uint(4), currentStudent(t, session))
}

func TestSessionFailedCommitKeepsQueueAndRetriesFailedOutcomes(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	store.failOutcomes[7] = 1
	session := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, session.SelectLevel(3, cbc.LevelME, nil))
	err := commitErr(ctx, session, true)
	recErr, ok := IsRecordingError(err)
	require.True(t, ok)
	require.Equal(t, []uint{7}, recErr.Failed)

	snapshot := session.Snapshot()
	require.Equal(t, string(StateError), snapshot.State)
	require.NotEmpty(t, snapshot.LastError)
	require.Equal(t, []uint{3, 4}, queueStudents(session))
	require.Equal(t, uint(3), snapshot.Current.StudentID)
	require.Equal(t, []uint{7}, snapshot.Current.FailedOutcomes)
	require.Equal(t, models.SubmissionStatusPending, store.submission(103).Status)

	require.NoError(t, commitErr(ctx, session, true))
	require.Equal(t, 1, store.rowsFor(5))
	require.Equal(t, 1, store.rowsFor(7))
	require.Equal(t, []uint{4}, queueStudents(session))
	require.Equal(t, StateReady, session.State())
	require.Empty(t, session.Snapshot().LastError)
}

func latestRowLevels(store *memoryBackend) map[uint]cbc.Level {
	latest := make(map[uint]cbc.Level)
	for _, row := range store.rows() {
		latest[row.LearningOutcomeID] = row.CompetencyLevel
	}
	return latest
}

func TestSessionChangedLevelAfterFailureRewritesEveryOutcome(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	store.failOutcomes[7] = 1
	session := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, session.SelectLevel(3, cbc.LevelME, nil))
	_, ok := IsRecordingError(commitErr(ctx, session, true))
	require.True(t, ok)
	require.Equal(t, map[uint]cbc.Level{5: cbc.LevelME}, latestRowLevels(store))

	require.NoError(t, session.SelectLevel(3, cbc.LevelBE, nil))
	require.NoError(t, commitErr(ctx, session, true))

	require.Equal(t, 2, store.rowsFor(5))
	require.Equal(t, 1, store.rowsFor(7))
	require.Equal(t, map[uint]cbc.Level{5: cbc.LevelBE, 7: cbc.LevelBE}, latestRowLevels(store))
	require.Equal(t, cbc.LevelBE, *store.submission(103).CompetencyLevel)
}

func TestSessionChangedCommentAfterFailureRewritesEveryOutcome(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3)
	store.failOutcomes[5] = 1
	session := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, session.SelectLevel(3, cbc.LevelAE, ptrString("Check the units")))
	require.Error(t, commitErr(ctx, session, true))
	require.Equal(t, 1, store.rowsFor(7))

	require.NoError(t, session.SetComment(3, "Check the units and show working"))
	require.NoError(t, commitErr(ctx, session, true))

	require.Equal(t, 1, store.rowsFor(5))
	require.Equal(t, 2, store.rowsFor(7))
	rows := store.rows()
	for _, row := range rows[len(rows)-2:] {
		require.Equal(t, "Check the units and show working", row.TeacherComment)
		require.Equal(t, cbc.LevelAE, row.CompetencyLevel)
	}
	require.Equal(t, StateComplete, session.State())
}

func TestSessionCommitReportsCommittedEntry(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3)
	session := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, session.SelectLevel(3, cbc.LevelAE, nil))
	result, err := session.Commit(ctx, false)
	require.NoError(t, err)
	require.Equal(t, CommitResult{
		StudentID:    3,
		StudentName:  "Student A",
		SubmissionID: 103,
		Level:        cbc.LevelAE,
		Graded:       1,
		Completed:    true,
	}, result)

	require.NoError(t, session.SelectLevel(3, cbc.LevelME, nil))
	result, err = session.Commit(ctx, false)
	require.NoError(t, err)
	require.Equal(t, cbc.LevelME, result.Level)
	require.False(t, result.Completed)

	_, err = session.Commit(ctx, false)
	require.ErrorIs(t, err, ErrNoSelection)
}

func TestSessionRejectsSecondCommitWhileInFlight(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	session := openSession(t, store)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 8)

	require.NoError(t, session.SelectLevel(3, cbc.LevelME, nil))

	done := make(chan error, 1)
	go func() { done <- commitErr(context.Background(), session, true) }()
	<-store.entered

	require.Equal(t, StateSubmitting, session.State())
	require.ErrorIs(t, commitErr(context.Background(), session, true), ErrCommitInFlight)
	require.True(t, session.Snapshot().Current.InFlight)

	close(store.gate)
	require.NoError(t, <-done)
	require.Len(t, store.rows(), 2)
	require.Equal(t, []uint{4}, queueStudents(session))
}

func TestSessionCloseDuringCommitStillPersistsWrites(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	session := openSession(t, store)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 8)

	require.NoError(t, session.SelectLevel(3, cbc.LevelEE, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- commitErr(ctx, session, true) }()
	<-store.entered

	session.Close()
	cancel()
	close(store.gate)
	require.NoError(t, <-done)

	require.Len(t, store.rows(), 2)
	require.Equal(t, models.SubmissionStatusGraded, store.submission(103).Status)

	snapshot := session.Snapshot()
	require.Equal(t, string(StateClosed), snapshot.State)
	require.Empty(t, snapshot.Queue)
	require.Zero(t, snapshot.GradedCount)
	require.ErrorIs(t, session.SelectLevel(4, cbc.LevelME, nil), ErrSessionClosed)
}

func TestSessionReloadIsEventuallyConsistentAcrossDevices(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	first := openSession(t, store)
	second := openSession(t, store)
	ctx := context.Background()

	require.NoError(t, first.SelectLevel(3, cbc.LevelME, nil))
	require.NoError(t, commitErr(ctx, first, true))
	require.Equal(t, []uint{4}, queueStudents(first))

	// The other device keeps its stale view until it reloads.
	require.Equal(t, []uint{3, 4}, queueStudents(second))
	require.NoError(t, second.Load(ctx, 1))
	require.Equal(t, []uint{4}, queueStudents(second))

	// A fresh pending submission reappears for the other device but stays
	// out of the queue of the session that already graded the student.
	store.addSubmission(models.Submission{
		ID:           303,
		AssignmentID: 1,
		StudentID:    3,
		SubmittedAt:  time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, first.Load(ctx, 1))
	require.Equal(t, []uint{4}, queueStudents(first))
	require.NoError(t, second.Load(ctx, 1))
	require.Equal(t, []uint{4, 3}, queueStudents(second))
}

func TestResolveKey(t *testing.T) {
	cases := []struct {
		name   string
		stroke Keystroke
		action KeyAction
		level  cbc.Level
	}{
		{"digit one is best", Keystroke{Key: "1"}, KeySelectLevel, cbc.LevelEE},
		{"digit two", Keystroke{Key: "2"}, KeySelectLevel, cbc.LevelME},
		{"digit three", Keystroke{Key: "3"}, KeySelectLevel, cbc.LevelAE},
		{"digit four is worst", Keystroke{Key: "4"}, KeySelectLevel, cbc.LevelBE},
		{"digit in text field", Keystroke{Key: "1", InTextField: true}, KeyIgnored, ""},
		{"unmapped digit", Keystroke{Key: "5"}, KeyIgnored, ""},
		{"plain enter", Keystroke{Key: "Enter"}, KeyIgnored, ""},
		{"ctrl enter saves and advances", Keystroke{Key: "Enter", Ctrl: true}, KeyCommitAndAdvance, ""},
		{"meta enter saves and advances", Keystroke{Key: "Enter", Meta: true}, KeyCommitAndAdvance, ""},
		{"ctrl shift enter saves only", Keystroke{Key: "Enter", Ctrl: true, Shift: true}, KeyCommit, ""},
		{"meta shift enter saves only", Keystroke{Key: "Enter", Meta: true, Shift: true}, KeyCommit, ""},
		{"ctrl enter in text field", Keystroke{Key: "Enter", Ctrl: true, InTextField: true}, KeyIgnored, ""},
		{"arrow right", Keystroke{Key: "ArrowRight"}, KeyNext, ""},
		{"arrow left", Keystroke{Key: "ArrowLeft"}, KeyPrevious, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, level := ResolveKey(tc.stroke)
			require.Equal(t, tc.action, action)
			require.Equal(t, tc.level, level)
		})
	}
}

func TestSessionHandleKeyDrivesGrading(t *testing.T) {
	store := newMemoryBackend()
	seedGrading(store, 3, 4)
	session := openSession(t, store)
	ctx := context.Background()

	action, err := session.HandleKey(ctx, Keystroke{Key: "2", InTextField: true})
	require.NoError(t, err)
	require.Equal(t, KeyIgnored, action)
	require.Nil(t, session.Snapshot().Current.SelectedLevel)

	action, err = session.HandleKey(ctx, Keystroke{Key: "2"})
	require.NoError(t, err)
	require.Equal(t, KeySelectLevel, action)
	require.Equal(t, cbc.LevelME, *session.Snapshot().Current.SelectedLevel)

	action, err = session.HandleKey(ctx, Keystroke{Key: "Enter", Ctrl: true})
	require.NoError(t, err)
	require.Equal(t, KeyCommitAndAdvance, action)
	require.Equal(t, uint(4), currentStudent(t, session))
	require.Equal(t, cbc.LevelME, *store.submission(103).CompetencyLevel)

	_, err = session.HandleKey(ctx, Keystroke{Key: "4"})
	require.NoError(t, err)
	action, err = session.HandleKey(ctx, Keystroke{Key: "Enter", Meta: true, Shift: true})
	require.NoError(t, err)
	require.Equal(t, KeyCommit, action)
	current := session.Snapshot().Current
	require.NotNil(t, current)
	require.Equal(t, uint(4), current.StudentID)
	require.True(t, current.Graded)
}
