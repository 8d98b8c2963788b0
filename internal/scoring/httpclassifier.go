package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// classifyRequest is the request body sent to the classifier endpoint.
type classifyRequest struct {
	Content string `json:"content"`
}

// classifyResponse is the expected response body.
type classifyResponse struct {
	ScoreDelta int            `json:"scoreDelta"`
	Categories map[string]int `json:"categories,omitempty"`
}

// HTTPClassifier calls an external semantic classification service over
// HTTP. The scorer wraps every call in the configured timeout, so the
// client itself carries none.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier posting to the given endpoint.
func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

// Classify sends the message content to the classification service and
// returns its score adjustment.
func (h *HTTPClassifier) Classify(ctx context.Context, content string) (Adjustment, error) {
	body, err := json.Marshal(classifyRequest{Content: content})
	if err != nil {
		return Adjustment{}, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Adjustment{}, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Adjustment{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Adjustment{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Adjustment{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	return Adjustment{
		ScoreDelta: parsed.ScoreDelta,
		Categories: parsed.Categories,
	}, nil
}
