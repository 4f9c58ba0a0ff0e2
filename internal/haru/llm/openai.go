package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haru-ai/haru/common/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Config configures the OpenAI-compatible chat provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini when empty.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// openAIProvider implements Provider using the OpenAI chat completions API
// with JSON-mode output so every response parses into a known shape.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// turnSystemPrompt instructs the model to act as a warm diary companion and
// to wrap every reply in the TurnResult JSON shape. The conversational rules
// mirror the product behaviour: Korean, 3–5 sentences, gentle follow-up
// questions, and an explicit ready_to_end hint once the user has said enough.
const turnSystemPrompt = `당신은 따뜻하고 공감 능력이 뛰어난 일기 작성 도우미입니다.
사용자의 하루를 자연스럽게 들어주며, 감정을 이해하고 공감해주세요.

역할:
1. 사용자가 하루를 회고할 수 있도록 자연스러운 질문을 합니다.
2. 사용자의 답변에서 감정, 사건, 인물 등 핵심 키워드를 파악합니다.
3. 필요하다면 심층 질문으로 더 자세한 이야기를 이끌어냅니다.
4. 사용자가 충분히 이야기했다고 느끼면 하루를 정리할지 제안합니다.

규칙:
- 한국어로 대화하고, 응답은 3-5문장으로 합니다.
- 대화가 아직 시작되지 않았다면 오늘 하루 어땠는지 묻는 인사로 시작하세요.
- 반드시 아래 JSON 형식으로만 응답하세요. 다른 텍스트를 포함하지 마세요.

{"reply": "<다음 응답>", "ready_to_end": <사용자가 충분히 이야기했으면 true>}`

// summarySystemPrompt instructs the model to condense a finished
// conversation into the SummaryResult JSON shape.
const summarySystemPrompt = `당신은 대화 내용을 일기 형식으로 요약하는 전문가입니다.

다음 대화 내용을 바탕으로:
1. 3-5문장의 1인칭 일기 요약을 작성하세요.
2. 주요 감정을 태그로 추출하세요 ('#' 없이, 각각 한 단어 또는 짧은 구).
3. 이미지 생성을 위한 시각적 묘사를 영어로 작성하세요 (날씨, 표정, 색감, 분위기).
4. BGM 생성을 위한 음악적 묘사를 영어로 작성하세요 (공간감, 템포, 분위기, 스타일).

반드시 아래 JSON 형식으로만 응답하세요:
{"summary": "...", "emotion_tags": ["기쁨", "설렘"], "image_prompt": "...", "bgm_prompt": "..."}`

// retagSystemPrompt instructs the model to re-derive tags and prompt seeds
// from an edited summary alone.
const retagSystemPrompt = `다음 일기 요약을 분석하고 감정 태그와 이미지/BGM 프롬프트를 생성하세요.
반드시 아래 JSON 형식으로만 응답하세요:
{"emotion_tags": ["감정1", "감정2"], "image_prompt": "...", "bgm_prompt": "..."}`

// Response schemas compiled once at package init. Validation happens before
// the payload is accepted so a drifting model cannot inject partial shapes
// into core state.
var (
	turnSchema = jsonschema.MustCompileString("turn.json", `{
		"type": "object",
		"required": ["reply"],
		"properties": {
			"reply": {"type": "string", "minLength": 1},
			"ready_to_end": {"type": "boolean"}
		}
	}`)

	summarySchema = jsonschema.MustCompileString("summary.json", `{
		"type": "object",
		"required": ["summary", "emotion_tags"],
		"properties": {
			"summary": {"type": "string", "minLength": 1},
			"emotion_tags": {"type": "array", "items": {"type": "string"}},
			"image_prompt": {"type": "string"},
			"bgm_prompt": {"type": "string"}
		}
	}`)

	retagSchema = jsonschema.MustCompileString("retag.json", `{
		"type": "object",
		"required": ["emotion_tags"],
		"properties": {
			"emotion_tags": {"type": "array", "items": {"type": "string"}},
			"image_prompt": {"type": "string"},
			"bgm_prompt": {"type": "string"}
		}
	}`)
)

// NextTurn produces the assistant's next message for the given transcript.
func (p *openAIProvider) NextTurn(ctx context.Context, transcript []Message) (*TurnResult, error) {
	msgs := make([]oaiMessage, 0, len(transcript)+1)
	msgs = append(msgs, oaiMessage{Role: "system", Content: turnSystemPrompt})
	for _, m := range transcript {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		msgs = append(msgs, oaiMessage{Role: role, Content: m.Content})
	}
	if len(transcript) == 0 {
		// No turns yet; prime the model to open the conversation.
		msgs = append(msgs, oaiMessage{Role: "user", Content: "대화를 시작해주세요."})
	}

	content, err := p.complete(ctx, msgs, 512)
	if err != nil {
		return nil, err
	}

	var result TurnResult
	if err := decodeValidated(content, turnSchema, &result); err != nil {
		return nil, fmt.Errorf("llm: next turn: %w", err)
	}
	return &result, nil
}

// Summarize condenses the transcript into a diary summary with tags and
// generation prompt seeds.
func (p *openAIProvider) Summarize(ctx context.Context, transcript []Message) (*SummaryResult, error) {
	msgs := []oaiMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: formatTranscript(transcript)},
	}

	content, err := p.complete(ctx, msgs, 1024)
	if err != nil {
		return nil, err
	}

	var result SummaryResult
	if err := decodeValidated(content, summarySchema, &result); err != nil {
		return nil, fmt.Errorf("llm: summarize: %w", err)
	}
	return &result, nil
}

// Retag re-derives emotion tags and prompt seeds from summary text alone.
func (p *openAIProvider) Retag(ctx context.Context, summary string) (*RetagResult, error) {
	msgs := []oaiMessage{
		{Role: "system", Content: retagSystemPrompt},
		{Role: "user", Content: "요약: " + summary},
	}

	content, err := p.complete(ctx, msgs, 512)
	if err != nil {
		return nil, err
	}

	var result RetagResult
	if err := decodeValidated(content, retagSchema, &result); err != nil {
		return nil, fmt.Errorf("llm: retag: %w", err)
	}
	return &result, nil
}

// retryable marks transient transport failures worth another attempt.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// complete performs a chat-completions round trip and returns the first
// choice's message content. Rate limits and server-side failures are
// retried with exponential backoff; everything else fails fast.
func (p *openAIProvider) complete(ctx context.Context, msgs []oaiMessage, maxTokens int) (string, error) {
	var content string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		ShouldRetry: func(err error) bool {
			if errors.Is(err, ErrRateLimited) {
				return true
			}
			var r retryable
			return errors.As(err, &r)
		},
	}, func() error {
		var err error
		content, err = p.completeOnce(ctx, msgs, maxTokens)
		return err
	})
	return content, err
}

// completeOnce performs a single chat-completions round trip.
func (p *openAIProvider) completeOnce(ctx context.Context, msgs []oaiMessage, maxTokens int) (string, error) {
	body := oaiRequest{
		Model:          p.cfg.Model,
		Messages:       msgs,
		MaxTokens:      maxTokens,
		ResponseFormat: &oaiFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", retryable{fmt.Errorf("llm: http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}

	var apiResp oaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("llm: decode API response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w (HTTP 429)", ErrRateLimited)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm: API error (%s): %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if resp.StatusCode >= 500 {
		return "", retryable{fmt.Errorf("llm: server error HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm: unexpected HTTP status %d", resp.StatusCode)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned (HTTP %d)", resp.StatusCode)
	}

	return stripCodeFence(apiResp.Choices[0].Message.Content), nil
}

// decodeValidated parses content as JSON, validates it against schema, then
// unmarshals into out. Any failure is reported as ErrMalformedOutput so
// callers can distinguish "model drifted" from transport errors.
func decodeValidated(content string, schema *jsonschema.Schema, out any) error {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return fmt.Errorf("%w: %v (raw content: %.200s)", ErrMalformedOutput, err, content)
	}
	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// stripCodeFence removes a surrounding Markdown code fence that some models
// emit despite JSON-mode instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// formatTranscript converts a message slice into a readable transcript for
// the summarisation prompt.
func formatTranscript(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}

// Compile-time interface satisfaction check.
var _ Provider = (*openAIProvider)(nil)
