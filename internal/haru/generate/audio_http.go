package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haru-ai/haru/common/redact"
)

// AudioConfig holds settings for the HTTP music backend, an inference
// server that renders short instrumental tracks from a text prompt.
type AudioConfig struct {
	// APIKey is the bearer token for the backend, if it requires one.
	APIKey string

	// BaseURL is the server base URL.
	BaseURL string

	// DurationSeconds is the track length to request. Defaults to 30.
	DurationSeconds int

	// Timeout bounds each request. Defaults to 180 seconds; music
	// rendering is the slowest generation path.
	Timeout time.Duration
}

type audioClient struct {
	cfg    AudioConfig
	client *http.Client
}

// NewAudioClient creates an AudioGenerator backed by cfg.
func NewAudioClient(cfg AudioConfig) AudioGenerator {
	if cfg.DurationSeconds <= 0 {
		cfg.DurationSeconds = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &audioClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type audioRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (c *audioClient) GenerateAudio(ctx context.Context, prompt string) ([]byte, string, error) {
	body, err := json.Marshal(audioRequest{
		Prompt:          prompt,
		DurationSeconds: c.cfg.DurationSeconds,
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate: marshal audio request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("generate: create audio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("generate: audio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		// Upstream error bodies sometimes echo request details back.
		excerpt := redact.String(string(bytes.TrimSpace(msg)), c.cfg.APIKey)
		return nil, "", fmt.Errorf("generate: audio API status %d: %s", resp.StatusCode, excerpt)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("generate: read audio payload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("generate: audio response was empty")
	}
	return data, ".wav", nil
}

var _ AudioGenerator = (*audioClient)(nil)
