package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPOracle calls an external model service over HTTP.
//
// The client carries no timeout of its own: a slow oracle is awaited to
// completion and cancellation is the caller's job via ctx. Transport
// errors and non-200 responses surface as errors so the orchestrator can
// substitute the fallback assessment.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an oracle client for the given model service URL.
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Predict posts the transaction context to the model service.
func (o *HTTPOracle) Predict(ctx context.Context, tx *TransactionContext) (*Assessment, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: predict request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: predict returned status %d", resp.StatusCode)
	}

	var assessment Assessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, fmt.Errorf("oracle: decode assessment: %w", err)
	}
	if assessment.Explanation.ModelScores == nil {
		assessment.Explanation.ModelScores = map[string]float64{}
	}
	if assessment.Explanation.TopFeatures == nil {
		assessment.Explanation.TopFeatures = []FeatureWeight{}
	}

	return &assessment, nil
}

// Status fetches model metadata from the service.
func (o *HTTPOracle) Status(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: status request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: status returned status %d", resp.StatusCode)
	}

	var meta map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("oracle: decode status: %w", err)
	}
	return meta, nil
}
