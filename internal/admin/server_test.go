package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iris-run/iris/internal/manager"
)

func setupManager(t *testing.T, pipelineJSON string) *manager.Manager {
	t.Helper()
	dir := t.TempDir()
	modDir := filepath.Join(dir, "modules")
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	cfgPath := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(pipelineJSON), 0o644))

	m := manager.New(zerolog.Nop())
	require.NoError(t, m.Initialize(modDir, cfgPath, false))
	return m
}

func TestListGraphsReturnsEveryGraph(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := setupManager(t, `{"g1":{},"g2":{}}`)

	s := NewServer(m, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/graphs", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Graphs []graphSummary `json:"graphs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Graphs, 2)
}

func TestListModulesUnknownGraphIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := setupManager(t, `{"g1":{}}`)
	s := NewServer(m, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/graphs/ghost/modules", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModuleParamsUnknownModuleIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := setupManager(t, `{"g1":{}}`)
	s := NewServer(m, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/graphs/g1/modules/ghost/params", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
