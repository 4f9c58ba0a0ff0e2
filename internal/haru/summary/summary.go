// Package summary turns a finished conversation transcript into the saved
// form of a diary entry: a prose summary, canonical emotion tags, and the
// generation prompt seeds for later media work.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haru-ai/haru/internal/haru/conversation"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/llm"
)

// Config holds the engine settings.
type Config struct {
	// CallTimeout bounds each model call. Defaults to 60 seconds;
	// summarisation reads the whole transcript and is slower than a chat
	// turn.
	CallTimeout time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Engine produces and refreshes entry summaries via the language model.
type Engine struct {
	provider llm.Provider
	timeout  time.Duration
	now      func() time.Time
}

// NewEngine creates an Engine over the given provider.
func NewEngine(provider llm.Provider, cfg Config) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		provider: provider,
		timeout:  cfg.CallTimeout,
		now:      cfg.Now,
	}
}

// Result is the saved form of a summarised entry.
type Result struct {
	Summary     string
	Tags        []string
	ImagePrompt string
	BGMPrompt   string
}

// Summarize condenses the transcript. An empty transcript cannot be
// summarised and fails with fault.ErrInvalidInput.
func (e *Engine) Summarize(ctx context.Context, transcript []conversation.Turn) (*Result, error) {
	if len(transcript) == 0 {
		return nil, fmt.Errorf("cannot summarise an empty transcript: %w", fault.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.provider.Summarize(ctx, toModelTranscript(transcript))
	if err != nil {
		return nil, generationErr("summarize", err)
	}

	return &Result{
		Summary:     strings.TrimSpace(res.Summary),
		Tags:        CanonicalTags(res.EmotionTags),
		ImagePrompt: strings.TrimSpace(res.ImagePrompt),
		BGMPrompt:   strings.TrimSpace(res.BGMPrompt),
	}, nil
}

// Retag derives a fresh tag set and prompt seeds from an edited summary.
// The summary text must be non-empty after trimming; callers keep the old
// tags when Retag fails.
func (e *Engine) Retag(ctx context.Context, summaryText string) (*Result, error) {
	summaryText = strings.TrimSpace(summaryText)
	if summaryText == "" {
		return nil, fmt.Errorf("summary text must not be empty: %w", fault.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.provider.Retag(ctx, summaryText)
	if err != nil {
		return nil, generationErr("retag", err)
	}

	return &Result{
		Summary:     summaryText,
		Tags:        CanonicalTags(res.EmotionTags),
		ImagePrompt: strings.TrimSpace(res.ImagePrompt),
		BGMPrompt:   strings.TrimSpace(res.BGMPrompt),
	}, nil
}

// CanonicalTags normalises a raw tag list: leading '#' stripped, whitespace
// trimmed, empties dropped, duplicates removed with first-seen order kept.
func CanonicalTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func toModelTranscript(turns []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.Timestamp,
		})
	}
	return msgs
}

func generationErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out: %w", op, fault.ErrGenerationTimeout)
	}
	return fmt.Errorf("%s failed: %v: %w", op, err, fault.ErrGenerationUnavailable)
}
