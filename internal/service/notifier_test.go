package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
)

func TestToastCenterKeepsBoundedFeedNewestFirst(t *testing.T) {
	center := NewToastCenter(nil, "", 2, testLogger())
	ctx := context.Background()

	require.NoError(t, center.Toast(ctx, Toast{TeacherID: 9, Kind: ToastKindSuccess, Title: "first"}))
	require.NoError(t, center.Toast(ctx, Toast{TeacherID: 9, Kind: ToastKindSuccess, Title: "second"}))
	require.NoError(t, center.Toast(ctx, Toast{TeacherID: 9, Kind: ToastKindError, Title: "third"}))
	require.NoError(t, center.Toast(ctx, Toast{TeacherID: 10, Title: "other teacher"}))

	recent := center.Recent(9, 0)
	require.Len(t, recent, 2)
	require.Equal(t, "third", recent[0].Title)
	require.Equal(t, "second", recent[1].Title)
	require.Len(t, center.Recent(9, 1), 1)

	other := center.Recent(10, 5)
	require.Len(t, other, 1)
	require.Equal(t, ToastKindInfo, other[0].Kind)
	require.Empty(t, center.Recent(11, 5))
}

func TestToastCenterSanitisesAndRejectsEmptyToasts(t *testing.T) {
	center := NewToastCenter(nil, "", 0, testLogger())
	ctx := context.Background()

	require.Error(t, center.Toast(ctx, Toast{Title: "no recipient"}))
	require.Error(t, center.Toast(ctx, Toast{TeacherID: 9, Message: "<script>x</script>"}))

	require.NoError(t, center.Toast(ctx, Toast{TeacherID: 9, Title: "Saved", Message: "<b>ME</b> recorded"}))
	require.Equal(t, "ME recorded", center.Recent(9, 1)[0].Message)
}

func TestToastCenterStreamsToSubscribers(t *testing.T) {
	center := NewToastCenter(nil, "", 0, testLogger())
	stream, cleanup := center.Subscribe(9)

	require.NoError(t, center.Toast(context.Background(), Toast{TeacherID: 9, Title: "Assessment Recorded"}))

	select {
	case toast := <-stream:
		require.Equal(t, "Assessment Recorded", toast.Title)
	case <-time.After(time.Second):
		t.Fatal("toast not delivered")
	}

	cleanup()
	cleanup()
	_, open := <-stream
	require.False(t, open)
}

func TestToastCenterDeliversRemoteEventsOnce(t *testing.T) {
	center := NewToastCenter(nil, "cbc", 0, testLogger()).(*toastCenter)
	require.Equal(t, "cbc.toasts", center.natsSubject)

	remote, err := json.Marshal(toastEvent{
		Source:    "another-node",
		TeacherID: 9,
		Toast:     dto.ToastResponse{ID: "t-1", Kind: ToastKindSuccess, Title: "from elsewhere"},
	})
	require.NoError(t, err)
	center.handleEvent(remote)

	own, err := json.Marshal(toastEvent{Source: center.nodeID, TeacherID: 9, Toast: dto.ToastResponse{ID: "t-2"}})
	require.NoError(t, err)
	center.handleEvent(own)
	center.handleEvent([]byte("not json"))

	recent := center.Recent(9, 0)
	require.Len(t, recent, 1)
	require.Equal(t, "from elsewhere", recent[0].Title)
}
