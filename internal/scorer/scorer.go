// Package scorer calls the frozen toxicity model.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdougie/toxiclens/internal/models"
)

// Scorer maps vectorized texts to one probability per toxicity class.
type Scorer interface {
	// Score returns exactly one row per input sequence, in input order.
	Score(ctx context.Context, batch [][]int32) ([]models.Scores, error)

	// Health reports whether the model can serve predictions.
	Health(ctx context.Context) error
}

// predictRequest is the row-format body of a predict call.
type predictRequest struct {
	Instances [][]int32 `json:"instances"`
}

// predictResponse is the row-format answer of a predict call.
type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// ModelServer is an HTTP client for a TensorFlow-Serving compatible REST API.
type ModelServer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewModelServer creates a new model server client
func NewModelServer(baseURL, model string, timeout time.Duration) *ModelServer {
	return &ModelServer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Score sends one predict request for the whole batch.
func (s *ModelServer) Score(ctx context.Context, batch [][]int32) ([]models.Scores, error) {
	const op = "scorer.Score"
	if len(batch) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, models.InferenceErr(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.InferenceErr(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.InferenceErr(op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, models.InferenceErr(op, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, models.InferenceErr(op, fmt.Errorf("failed to decode response: %w", err))
	}
	if result.Error != "" {
		return nil, models.InferenceErr(op, fmt.Errorf("model server error: %s", result.Error))
	}

	scores, err := toScores(result.Predictions, len(batch))
	if err != nil {
		return nil, models.InferenceErr(op, err)
	}
	return scores, nil
}

// Health checks the model status endpoint.
func (s *ModelServer) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server not ready: status %d", resp.StatusCode)
	}
	return nil
}

// toScores validates the prediction matrix shape and value range.
func toScores(rows [][]float32, want int) ([]models.Scores, error) {
	if len(rows) != want {
		return nil, fmt.Errorf("model returned %d rows for %d inputs", len(rows), want)
	}
	out := make([]models.Scores, len(rows))
	for i, row := range rows {
		if len(row) != models.NumClasses {
			return nil, fmt.Errorf("row %d has %d scores, want %d", i, len(row), models.NumClasses)
		}
		for c, v := range row {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("row %d class %s score %v outside [0,1]", i, models.ClassNames[c], v)
			}
			out[i][c] = v
		}
	}
	return out, nil
}
