package handler

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbc-grading-api/internal/dto"
)

func TestWriteToastEventFramesSSE(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	toast := dto.ToastResponse{ID: "t-1", Kind: "success", Title: "Assessment Recorded", CreatedAt: time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)}
	require.NoError(t, writeToastEvent(w, toast))

	lines := strings.Split(buf.String(), "\n")
	require.Equal(t, "id: t-1", lines[0])
	require.Equal(t, "event: toast", lines[1])
	require.True(t, strings.HasPrefix(lines[2], `data: {"id":"t-1","kind":"success","title":"Assessment Recorded"`))
	require.True(t, strings.HasSuffix(buf.String(), "\n\n"))

	buf.Reset()
	require.NoError(t, writeKeepAlive(w))
	require.True(t, strings.HasPrefix(buf.String(), ": keep-alive "))
}
