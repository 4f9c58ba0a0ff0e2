// Package llm provides the language-model collaborator for Haru.
//
// The LLM layer has three jobs and nothing else: produce the next assistant
// turn of a diary conversation, condense a finished conversation into a
// summary with emotion tags, and re-derive tags when the user edits a
// summary by hand. It never decides what happens to its output; the
// conversation engine and summary engine own those policies.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned by a Provider when the upstream API reports a
// rate-limiting condition (e.g. HTTP 429 Too Many Requests). Callers should
// surface the failure instead of silently retrying forever.
var ErrRateLimited = errors.New("llm: upstream rate limit exceeded")

// ErrMalformedOutput is returned by a Provider when the model returns a
// structurally valid HTTP response whose body cannot be interpreted as the
// expected JSON payload (parse failure, schema violation).
var ErrMalformedOutput = errors.New("llm: malformed response from model")

// Message is a single prior turn handed to the model as context.
type Message struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the turn text.
	Content string
	// Timestamp is when the turn was recorded. Not sent on the wire; kept
	// so transcripts round-trip through the provider unchanged.
	Timestamp time.Time
}

// TurnResult is the structured output of a single conversational turn.
type TurnResult struct {
	// Reply is the assistant's next message.
	Reply string `json:"reply"`

	// ReadyToEnd is the model's own judgment that the user has told enough
	// of their day and the conversation could be wrapped up. It is a hint,
	// never a command. The caller decides whether to finish the session.
	ReadyToEnd bool `json:"ready_to_end"`
}

// SummaryResult is the structured output of a summarisation call.
type SummaryResult struct {
	// Summary is a 3–5 sentence first-person diary summary.
	Summary string `json:"summary"`

	// EmotionTags are the dominant emotions of the day, one word or short
	// phrase each, without a leading '#'. Typically 1–5 tags.
	EmotionTags []string `json:"emotion_tags"`

	// ImagePrompt is a visual description seed for the image generator.
	ImagePrompt string `json:"image_prompt"`

	// BGMPrompt is a musical description seed for the audio generator.
	BGMPrompt string `json:"bgm_prompt"`
}

// RetagResult is the structured output of a retag call over an edited
// summary. Tags replace the previous set entirely.
type RetagResult struct {
	EmotionTags []string `json:"emotion_tags"`
	ImagePrompt string   `json:"image_prompt"`
	BGMPrompt   string   `json:"bgm_prompt"`
}

// Provider is the language-model collaborator contract.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// All methods honour ctx cancellation and deadlines; a deadline overrun is
// reported via ctx's error so callers can map it to their timeout taxonomy.
type Provider interface {
	// NextTurn produces the assistant's next message given the transcript
	// so far. An empty transcript asks for the opening greeting.
	NextTurn(ctx context.Context, transcript []Message) (*TurnResult, error)

	// Summarize condenses a finished conversation into a diary summary,
	// emotion tags, and generation prompt seeds.
	Summarize(ctx context.Context, transcript []Message) (*SummaryResult, error)

	// Retag re-derives emotion tags and prompt seeds from edited summary
	// text alone, without the original transcript.
	Retag(ctx context.Context, summary string) (*RetagResult, error)
}
