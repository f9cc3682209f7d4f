// Package retrieval provides the knowledge-base query collaborator.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumenhq/agent-platform/internal/model"
)

const (
	// maxContextTokensCap is the hard cap on retrieved context, regardless
	// of the model's budget.
	maxContextTokensCap = 2000

	// contextBudgetShare is the fraction of the model's max-token budget
	// available to retrieved context.
	contextBudgetShare = 0.2
)

// MaxContextTokens returns min(20% of the model budget, 2000).
func MaxContextTokens(modelContextTokens int) int {
	budget := int(float64(modelContextTokens) * contextBudgetShare)
	if budget > maxContextTokensCap {
		return maxContextTokensCap
	}
	return budget
}

// Query is one retrieval request against the knowledge base.
type Query struct {
	Query        string   `json:"query"`
	DatastoreIDs []string `json:"datastore_ids"`
	TopK         int      `json:"top_k"`
	MinScore     float64  `json:"min_score"`
	MaxTokens    int      `json:"max_tokens"`
}

// Result carries the retrieved context block and its citations.
type Result struct {
	Context string         `json:"context"`
	Sources []model.Source `json:"sources,omitempty"`
}

// Retriever is the retrieval collaborator interface consumed by the
// assembler.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) (*Result, error)
}

// Client queries the knowledge-base service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a retrieval client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Retrieve fetches the top-K semantically relevant chunks for the query.
func (c *Client) Retrieve(ctx context.Context, q Query) (*Result, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("retrieval service returned %d: %s", resp.StatusCode, raw)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}
	return &result, nil
}
