// Package retrieval queries an external vector-similarity service for scheme
// document chunks backing recommendations.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agrivaani/agrivaani/pkg/ports"
)

// Client implements ports.EvidenceRetriever over HTTP. The service accepts a
// JSON query and returns ranked chunks.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a retrieval client for the given service URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryResponse struct {
	Chunks []chunk `json:"chunks"`
}

type chunk struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Retrieve fetches up to limit chunks relevant to the query.
func (c *Client) Retrieve(ctx context.Context, query string, limit int) ([]ports.Evidence, error) {
	body, err := json.Marshal(queryRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encoding retrieval query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying retrieval service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval service returned %s", resp.Status)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding retrieval response: %w", err)
	}

	evidence := make([]ports.Evidence, 0, len(out.Chunks))
	for _, ch := range out.Chunks {
		evidence = append(evidence, ports.Evidence{Text: ch.Text, Source: ch.Source, Score: ch.Score})
	}
	return evidence, nil
}
