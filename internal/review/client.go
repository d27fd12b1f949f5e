// Package review calls the external AI code-review service. The service is
// an ordinary collaborator: it sees full document text out-of-band and its
// suggested fixes re-enter the engine as normal edit submissions.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fioimma-23/real-time-code-collab-with-ai/internal/models"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Review posts the document text and returns the service's suggestions.
func (c *Client) Review(ctx context.Context, language, code string) ([]models.Suggestion, error) {
	body, err := json.Marshal(models.ReviewRequest{Language: language, Code: code})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/review", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call review service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("review service returned status %d", resp.StatusCode)
	}

	var out models.ReviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode review response: %w", err)
	}
	return out.Suggestions, nil
}
