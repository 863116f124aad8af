package retrieval_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/internal/retrieval"
)

func TestClient_Retrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)

		var req struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 12, req.Limit)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"chunks": []map[string]any{
				{"text": "KCC offers crop loans.", "source": "kcc_guidelines.pdf", "score": 0.91},
			},
		})
	}))
	defer srv.Close()

	c := retrieval.NewClient(srv.URL)
	evidence, err := c.Retrieve(context.Background(), `{"state": "Maharashtra"}`, 12)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "KCC offers crop loans.", evidence[0].Text)
	assert.Equal(t, "kcc_guidelines.pdf", evidence[0].Source)
}

func TestClient_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := retrieval.NewClient(srv.URL)
	_, err := c.Retrieve(context.Background(), "q", 5)
	assert.Error(t, err)
}
