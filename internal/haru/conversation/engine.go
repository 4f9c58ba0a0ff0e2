package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/llm"
)

// EngineConfig configures the turn engine.
type EngineConfig struct {
	// Phrases are the completion phrase lists. Zero value uses the built-in
	// Korean defaults.
	Phrases PhraseConfig

	// CallTimeout bounds each language-model call. Default: 30 s.
	CallTimeout time.Duration

	// Now overrides the clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine drives a diary conversation: it appends turns, asks the language
// model for the next reply, and classifies completion. The engine mutates
// sessions handed to it but never stores them. Registry and locking belong
// to the Store, persistence to the diary repository.
type Engine struct {
	provider llm.Provider
	phrases  PhraseConfig
	timeout  time.Duration
	now      func() time.Time
}

// NewEngine creates an Engine backed by the given language-model provider.
func NewEngine(provider llm.Provider, cfg EngineConfig) *Engine {
	if len(cfg.Phrases.UserEndPhrases) == 0 && len(cfg.Phrases.AssistantEndCues) == 0 {
		cfg.Phrases = DefaultPhraseConfig()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		provider: provider,
		phrases:  cfg.Phrases,
		timeout:  cfg.CallTimeout,
		now:      cfg.Now,
	}
}

// NewSessionID mints a session identifier. The diary date is embedded for
// operator-friendly log lines; uniqueness comes from the UUID suffix.
func NewSessionID(date time.Time) string {
	return fmt.Sprintf("diary_%s_%s", date.Format("20060102"), strings.Split(uuid.NewString(), "-")[0])
}

// Start creates a session for the given user and diary date and produces
// the opening assistant greeting.
//
// A zero date means "today". A future date (relative to the engine clock,
// in UTC days) is rejected with fault.ErrInvalidInput. The returned session
// is not yet registered anywhere; the caller adds it to the Store.
func (e *Engine) Start(ctx context.Context, userID string, date time.Time) (*Session, string, error) {
	now := e.now().UTC()

	date, err := DiaryDate(now, date)
	if err != nil {
		return nil, "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.provider.NextTurn(callCtx, nil)
	if err != nil {
		return nil, "", generationErr("start greeting", err)
	}

	s := &Session{
		ID:        NewSessionID(date),
		UserID:    userID,
		Date:      date,
		StartedAt: now,
	}
	s.append(RoleAssistant, result.Reply, now)

	return s, result.Reply, nil
}

// Advance appends the user's message, asks the model for the next reply
// with the full transcript as context, appends the reply, and classifies
// completion.
//
// complete is a readiness signal only; the session stays active until the
// caller finishes it. On a collaborator failure the user's message stays
// appended, so the turn can be retried without the user repeating themselves.
func (e *Engine) Advance(ctx context.Context, s *Session, userMsg string) (reply string, complete bool, err error) {
	if strings.TrimSpace(userMsg) == "" {
		return "", false, fmt.Errorf("empty user message: %w", fault.ErrInvalidInput)
	}

	s.append(RoleUser, userMsg, e.now().UTC())

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.provider.NextTurn(callCtx, toModelTranscript(s.Turns))
	if err != nil {
		return "", false, generationErr("advance", err)
	}

	s.append(RoleAssistant, result.Reply, e.now().UTC())

	signal := DetectCompletion(s.Turns, e.phrases, result.ReadyToEnd)
	return result.Reply, signal != SignalContinue, nil
}

// Finish freezes the session and returns its transcript. It is idempotent:
// repeated calls return the same transcript without touching the model, and
// never mutate the turns.
func (e *Engine) Finish(s *Session) []Turn {
	s.Finished = true
	out := make([]Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

// toModelTranscript converts session turns into the provider's message type.
func toModelTranscript(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content, Timestamp: t.Timestamp}
	}
	return msgs
}

// generationErr maps a collaborator failure onto the core error taxonomy.
// Deadline overruns become timeouts; everything else is unavailability.
func generationErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("conversation %s: %w", op, fault.ErrGenerationTimeout)
	}
	return fmt.Errorf("conversation %s: %v: %w", op, err, fault.ErrGenerationUnavailable)
}

// DiaryDate normalises a requested diary date against the current time. A
// zero date means "today"; any date is truncated to its UTC day. Future
// dates are rejected with fault.ErrInvalidInput.
func DiaryDate(now, date time.Time) (time.Time, error) {
	today := truncateToDay(now.UTC())
	if date.IsZero() {
		return today, nil
	}
	date = truncateToDay(date.UTC())
	if date.After(today) {
		return time.Time{}, fmt.Errorf("diary date %s is in the future: %w",
			date.Format("2006-01-02"), fault.ErrInvalidInput)
	}
	return date, nil
}

// truncateToDay drops the time-of-day component, keeping the UTC date.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
