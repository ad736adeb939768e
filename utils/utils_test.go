package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mioserver/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSweeper struct {
	mu     sync.Mutex
	before []time.Time
}

func (f *fakeSweeper) SweepAbandoned(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = append(f.before, before)
	return 2, nil
}

func (f *fakeSweeper) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.before)
}

func TestInitLogger(t *testing.T) {
	logger, err := InitLogger(models.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = InitLogger(models.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = InitLogger(models.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	server := gin.New()
	server.Use(RequestLogger(zap.New(core)))
	server.GET("/rooms/:roomID", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/rooms/abc", nil)
	server.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/rooms/abc", fields["path"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
}

func TestCronCleaner(t *testing.T) {
	s := &fakeSweeper{}
	c, err := CronCleaner(s, models.SweeperConfig{Schedule: "@every 1s", MaxIdle: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return s.calls() > 0 }, 5*time.Second, 50*time.Millisecond)
	s.mu.Lock()
	before := s.before[0]
	s.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), before, 5*time.Second)
}

func TestCronCleanerRejectsBadSchedule(t *testing.T) {
	_, err := CronCleaner(&fakeSweeper{}, models.SweeperConfig{Schedule: "every now and then"}, zap.NewNop())
	assert.Error(t, err)
}
