package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/config"
)

func TestFormatLessonTime(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "lundi 6 janvier 2025 à 10:00", FormatLessonTime(start, loc))
}

func TestConsoleEmail(t *testing.T) {
	gw := NewEmailGateway(&config.Config{Env: "dev"}, zap.NewNop())
	res, err := gw.SendEmail(context.Background(), "a@example.com", "s", "<p>b</p>")
	require.NoError(t, err)
	assert.Equal(t, "logged", res.Status)
	assert.Contains(t, res.MessageID, "console_")
}

func TestIsSystemErr(t *testing.T) {
	assert.True(t, isSystemErr(errors.New("Too Many Requests: retry after 429")))
	assert.True(t, isSystemErr(errors.New("i/o timeout")))
	assert.False(t, isSystemErr(errors.New("Bad Request: chat not found")))
	assert.False(t, isSystemErr(nil))
}
