package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/toolregistry"
)

func TestRouter_LoadRegistersRESTAndSystemTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	cfg := Config{
		Name:      "incidents",
		Variant:   VariantREST,
		BaseURL:   srv.URL,
		Endpoints: []Endpoint{{Name: "list", Method: "GET", Path: "/incidents"}},
	}
	router, err := NewRouter([]Config{cfg})
	require.NoError(t, err)

	reg := toolregistry.New()
	require.NoError(t, router.Load(context.Background(), reg))

	_, ok := reg.Get("incidents_list")
	assert.True(t, ok)
	_, ok = reg.Get("incidents_request")
	assert.True(t, ok)
	_, ok = reg.Get("_system_list_integrations")
	assert.True(t, ok)
}

func TestRouter_RejectsDuplicateNames(t *testing.T) {
	cfg := Config{Name: "dup", Variant: VariantREST, BaseURL: "https://example.invalid"}
	_, err := NewRouter([]Config{cfg, cfg})
	assert.Error(t, err)
}

func TestRouter_RejectsInvalidConfig(t *testing.T) {
	cfg := Config{Name: "bad", Variant: VariantREST}
	_, err := NewRouter([]Config{cfg})
	assert.Error(t, err)
}

func TestRouter_SystemListIntegrations(t *testing.T) {
	cfg := Config{Name: "svc", Variant: VariantREST, BaseURL: "https://example.invalid"}
	router, err := NewRouter([]Config{cfg})
	require.NoError(t, err)

	reg := toolregistry.New()
	require.NoError(t, router.Load(context.Background(), reg))

	res := reg.Execute(context.Background(), "_system_list_integrations", map[string]any{}, agent.ToolContext{})
	require.True(t, res.Success)
	integrations, ok := res.Metadata["integrations"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, integrations, 1)
	assert.Equal(t, "svc", integrations[0]["name"])
}
