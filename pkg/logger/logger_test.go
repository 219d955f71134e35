package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/lti-assignments-api/pkg/config"
)

func TestNewHonoursLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "warn", Format: "console"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestGinMiddlewareLevelsAndFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core), AccessLogOptions{
		SkipPaths: []string{"/health"},
		Fields: []FieldsFunc{func(c *gin.Context) []zap.Field {
			return []zap.Field{zap.String("user_id", c.GetHeader("X-Test-User"))}
		}},
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/assignments/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.POST("/submissions/publish", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	req := httptest.NewRequest(http.MethodGet, "/assignments/9", nil)
	req.Header.Set("X-Test-User", "u1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/submissions/publish", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/assignments/:id", entries[0].ContextMap()["route"])
	assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
