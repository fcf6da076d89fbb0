package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })

	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/files/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/files/abc", nil)
	router.ServeHTTP(w, req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/files/abc", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestSetup(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Options{Level: "debug"}.Setup()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Options{Level: "nonsense"}.Setup()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
