package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPConfig configures the remote predictor client.
type HTTPConfig struct {
	// URL is the prediction endpoint.
	URL string

	// Timeout bounds each prediction call.
	Timeout time.Duration
}

// HTTPPredictor calls the external retention service over HTTP. The service
// owns the trained model; this client only ships features and reads back a
// probability.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

// NewHTTPPredictor creates a remote predictor client.
func NewHTTPPredictor(cfg HTTPConfig) *HTTPPredictor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPPredictor{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

// Predict posts features to the remote service. Any transport or decode
// failure maps to ErrUnavailable so callers fall back to a neutral score.
func (h *HTTPPredictor) Predict(ctx context.Context, f Features) (float64, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("%w: probability %v out of range", ErrUnavailable, out.Probability)
	}
	return out.Probability, nil
}
