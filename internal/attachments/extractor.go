package attachments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenhq/agent-platform/internal/model"
)

// HTTPExtractor extracts document text through the document-processing
// service.
type HTTPExtractor struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPExtractor creates an extraction service client.
func NewHTTPExtractor(baseURL, apiKey string) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// ExtractText asks the service to fetch the document and return its text.
func (e *HTTPExtractor) ExtractText(ctx context.Context, att model.Attachment) (string, error) {
	body, err := json.Marshal(map[string]string{
		"url":       att.URL,
		"mime_type": att.MimeType,
		"name":      att.Name,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", att.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extract %s: status %d", att.Name, resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}
	return out.Text, nil
}
