package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"
)

// LivenessResult is the anti-spoofing verdict for one image.
type LivenessResult struct {
	IsLive     bool                   `json:"is_live"`
	Confidence float64                `json:"confidence"`
	Checks     map[string]interface{} `json:"checks"`
}

// Client calls the face service for liveness checks. With Skip set every
// image is reported live without a network call.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Annotate(err, "face service unavailable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// Liveness checks whether image, a URL or data URL, shows a live person.
func (c *Client) Liveness(ctx context.Context, image string) (*LivenessResult, error) {
	if c.Skip {
		return &LivenessResult{
			IsLive:     true,
			Confidence: 0.85,
			Checks:     map[string]interface{}{"mock": true},
		}, nil
	}
	if image == "" {
		return nil, errors.NotValidf("empty image")
	}

	body, _ := json.Marshal(map[string]string{"image_url": image})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/liveness", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "face service request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out LivenessResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Annotate(err, "decoding liveness response")
	}
	return &out, nil
}
