package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Health(t *testing.T) {
	srv := NewServer("127.0.0.1:0", func(context.Context) map[string]any {
		return map[string]any{"state": "clean"}
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "up", body["status"])
	assert.Equal(t, "clean", body["state"])
}

func TestServer_Metrics(t *testing.T) {
	GraphNodes.Set(3)
	rec := httptest.NewRecorder()
	NewServer("", nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bundlegraph_graph_modules 3")
}

func TestInitTracing_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "  ", true)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
