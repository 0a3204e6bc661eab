package http_init

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type pingController struct{}

func (pingController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
}

func TestControllerPoolMountsUnderAPIPrefix(t *testing.T) {
	pool := NewControllerPool()
	pool.Add(pingController{})
	pool.Register()

	w := httptest.NewRecorder()
	pool.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	pool.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccessLogLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(AccessLog(zap.New(core)))
	pingController{}.RegisterRoutes(engine.Group(""))

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zap.DebugLevel, entries[0].Level)
		assert.Equal(t, zap.ErrorLevel, entries[1].Level)
		assert.Equal(t, "/boom", entries[1].ContextMap()["path"])
	}
}
