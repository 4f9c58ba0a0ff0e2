package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haru-ai/haru/common/redact"
)

// ImageConfig holds settings for the HTTP image backend.
type ImageConfig struct {
	// APIKey is the bearer token for the backend.
	APIKey string

	// BaseURL is the API base, e.g. "https://api.openai.com/v1".
	BaseURL string

	// Model is the image model identifier.
	Model string

	// Size is the rendered image size. Defaults to "1024x1024".
	Size string

	// Timeout bounds each request. Defaults to 120 seconds; image
	// rendering is slow.
	Timeout time.Duration
}

// imageClient renders images via an OpenAI-compatible images endpoint.
type imageClient struct {
	cfg    ImageConfig
	client *http.Client
}

// NewImageClient creates an ImageGenerator backed by cfg.
func NewImageClient(cfg ImageConfig) ImageGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &imageClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *imageClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	body, err := json.Marshal(imageRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate: marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("generate: create image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("generate: image request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, "", fmt.Errorf("generate: decode image response: %w", err)
	}

	if decoded.Error != nil {
		if decoded.Error.Code == "content_policy_violation" {
			return nil, "", fmt.Errorf("%s: %w", decoded.Error.Message, ErrContentRejected)
		}
		return nil, "", fmt.Errorf("generate: image API error: %s",
			redact.String(decoded.Error.Message, c.cfg.APIKey))
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("generate: image API status %d", resp.StatusCode)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return nil, "", fmt.Errorf("generate: image response contained no image")
	}

	data, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, "", fmt.Errorf("generate: decode image payload: %w", err)
	}
	return data, ".png", nil
}

var _ ImageGenerator = (*imageClient)(nil)
