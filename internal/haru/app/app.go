// Package app wires the diary service together and exposes its use cases:
// running conversation sessions, saving and curating entries, generating
// media, and reading statistics. The HTTP layer calls into this package
// and nothing else.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haru-ai/haru/internal/haru/config"
	"github.com/haru-ai/haru/internal/haru/conversation"
	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/gallery"
	"github.com/haru-ai/haru/internal/haru/generate"
	"github.com/haru-ai/haru/internal/haru/llm"
	"github.com/haru-ai/haru/internal/haru/stats"
	"github.com/haru-ai/haru/internal/haru/summary"
)

// BlobStore is the media storage the app serves and releases blobs from.
type BlobStore interface {
	Put(data []byte, ext string) (string, error)
	Open(path string) ([]byte, error)
	Delete(path string) error
}

// Deps are the collaborators the app is built from. Entries and Blobs are
// the persistence layer; Provider, Images and Audio are the generation
// backends.
type Deps struct {
	Entries  diary.EntryStore
	Blobs    BlobStore
	Provider llm.Provider
	Images   generate.ImageGenerator
	Audio    generate.AudioGenerator

	Config *config.Config

	// Now overrides the clock for tests.
	Now func() time.Time
}

// App is the service facade.
type App struct {
	repo       *diary.Repository
	sessions   *conversation.Store
	engine     *conversation.Engine
	summarizer *summary.Engine
	gallery    *gallery.Manager
	stats      *stats.Aggregator
	blobs      BlobStore
	chatLimit  *llm.RateLimiter
	now        func() time.Time
}

// New assembles the service from its dependencies.
func New(deps Deps) *App {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	repo := diary.NewRepository(deps.Entries, deps.Blobs, now)

	phrases := conversation.DefaultPhraseConfig()
	if len(cfg.Conversation.UserEndPhrases) > 0 {
		phrases.UserEndPhrases = cfg.Conversation.UserEndPhrases
	}
	if len(cfg.Conversation.AssistantEndCues) > 0 {
		phrases.AssistantEndCues = cfg.Conversation.AssistantEndCues
	}

	engine := conversation.NewEngine(deps.Provider, conversation.EngineConfig{
		Phrases:     phrases,
		CallTimeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Now:         now,
	})

	sessions := conversation.NewStore(conversation.StoreConfig{
		IdleTimeout: cfg.Conversation.IdleTimeout(),
	})

	summarizer := summary.NewEngine(deps.Provider, summary.Config{
		CallTimeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Now:         now,
	})

	var genLimit *llm.RateLimiter
	if cfg.Limits.GenerationPerMinute > 0 {
		genLimit = llm.NewRateLimiter(cfg.Limits.GenerationPerMinute, time.Minute)
	}
	media := gallery.NewManager(repo, deps.Images, deps.Audio, deps.Blobs, gallery.Config{
		CallTimeout: time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
		RateLimit:   genLimit,
		Now:         now,
	})

	var chatLimit *llm.RateLimiter
	if cfg.Limits.ChatPerMinute > 0 {
		chatLimit = llm.NewRateLimiter(cfg.Limits.ChatPerMinute, time.Minute)
	}

	return &App{
		repo:       repo,
		sessions:   sessions,
		engine:     engine,
		summarizer: summarizer,
		gallery:    media,
		stats:      stats.NewAggregator(deps.Entries, now),
		blobs:      deps.Blobs,
		chatLimit:  chatLimit,
		now:        now,
	}
}

// Run starts background maintenance (the idle-session sweeper) and blocks
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.sessions.RunSweeper(ctx, time.Minute, func(s *conversation.Session) {
		a.discardDraft(context.Background(), s.UserID, s.ID)
	})
}

// StartResult is the outcome of StartSession.
type StartResult struct {
	SessionID string    `json:"session_id"`
	Date      time.Time `json:"date"`
	Greeting  string    `json:"greeting"`
}

// StartSession opens a conversation for the given diary date (zero means
// today) and returns the assistant's greeting.
//
// A stale un-summarised draft for the same date is discarded first. That
// cleanup is best-effort: a failure is logged and the start continues, and
// only the daily-entry cap can still reject it. The cap is checked before
// the language model is called.
func (a *App) StartSession(ctx context.Context, userID string, date time.Time) (*StartResult, error) {
	date, err := conversation.DiaryDate(a.now().UTC(), date)
	if err != nil {
		return nil, err
	}

	drafts, err := a.repo.DraftsForDate(ctx, userID, date)
	if err != nil {
		slog.Warn("failed to look up stale drafts", "user", userID, "err", err)
	}
	for _, d := range drafts {
		a.sessions.Drop(d.ID)
		if err := a.repo.Delete(ctx, userID, d.ID); err != nil {
			slog.Warn("failed to discard stale draft", "entry", d.ID, "err", err)
		}
	}

	n, err := a.repo.CountForDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if n >= diary.MaxEntriesPerDay {
		return nil, fmt.Errorf("date %s already holds %d entries: %w",
			date.Format("2006-01-02"), n, fault.ErrConflict)
	}

	sess, greeting, err := a.engine.Start(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	draft := &diary.Entry{
		ID:         sess.ID,
		UserID:     userID,
		Date:       sess.Date,
		Transcript: sess.Turns,
	}
	if err := a.repo.CreateDraft(ctx, draft); err != nil {
		return nil, err
	}

	if err := a.sessions.Create(sess); err != nil {
		a.discardDraft(ctx, userID, sess.ID)
		return nil, err
	}

	return &StartResult{SessionID: sess.ID, Date: sess.Date, Greeting: greeting}, nil
}

// AdvanceResult is the outcome of one conversation turn.
type AdvanceResult struct {
	Reply    string `json:"reply"`
	Complete bool   `json:"complete"`
}

// Advance runs one conversation turn. The user's message is kept even when
// the model call fails, so a retry does not make the user repeat
// themselves. Complete signals readiness to end; the session stays active
// until EndSession.
func (a *App) Advance(ctx context.Context, userID, sessionID, message string) (*AdvanceResult, error) {
	if a.chatLimit != nil && !a.chatLimit.Allow(userID) {
		return nil, fmt.Errorf("chat rate limit reached for user: %w", fault.ErrQuotaExceeded)
	}

	sess, release, err := a.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if sess.UserID != userID {
		return nil, fmt.Errorf("session %s is not owned by caller: %w", sessionID, fault.ErrForbidden)
	}
	if sess.Finished {
		return nil, fmt.Errorf("session %s is already finished: %w", sessionID, fault.ErrConflict)
	}

	reply, complete, advErr := a.engine.Advance(ctx, sess, message)

	// Persist whatever the session holds now, including a trailing user
	// turn from a failed model call, so the draft survives a crash.
	a.persistTranscript(ctx, sess)

	if advErr != nil {
		return nil, advErr
	}
	return &AdvanceResult{Reply: reply, Complete: complete}, nil
}

// EndSession finishes the conversation, summarises it, and saves the entry.
// On a summarisation failure the session stays registered and finished, so
// the call can simply be retried.
func (a *App) EndSession(ctx context.Context, userID, sessionID string) (*diary.Entry, error) {
	sess, release, err := a.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if sess.UserID != userID {
		return nil, fmt.Errorf("session %s is not owned by caller: %w", sessionID, fault.ErrForbidden)
	}

	transcript := a.engine.Finish(sess)

	res, err := a.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return nil, err
	}

	entry, err := a.repo.Update(ctx, userID, sessionID, func(e *diary.Entry) error {
		e.Transcript = transcript
		e.Summary = res.Summary
		e.Tags = res.Tags
		e.ImagePrompt = res.ImagePrompt
		e.BGMPrompt = res.BGMPrompt
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.sessions.Drop(sessionID)
	return entry, nil
}

// DiscardSession abandons an active conversation and deletes its draft.
func (a *App) DiscardSession(ctx context.Context, userID, sessionID string) error {
	sess, release, err := a.sessions.Acquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	if sess.UserID != userID {
		return fmt.Errorf("session %s is not owned by caller: %w", sessionID, fault.ErrForbidden)
	}

	a.sessions.Drop(sessionID)
	return a.repo.Delete(ctx, userID, sessionID)
}

// UpdateSummary replaces the entry's summary text and derives a fresh tag
// set and prompt seeds from it. The new tags replace the old ones; on any
// failure the entry keeps its previous summary and tags.
func (a *App) UpdateSummary(ctx context.Context, userID, entryID, newSummary string) (*diary.Entry, error) {
	return a.repo.Update(ctx, userID, entryID, func(e *diary.Entry) error {
		res, err := a.summarizer.Retag(ctx, newSummary)
		if err != nil {
			return err
		}
		e.Summary = res.Summary
		e.Tags = res.Tags
		e.ImagePrompt = res.ImagePrompt
		e.BGMPrompt = res.BGMPrompt
		return nil
	})
}

// GetEntry returns the entry, verifying ownership.
func (a *App) GetEntry(ctx context.Context, userID, entryID string) (*diary.Entry, error) {
	return a.repo.Get(ctx, userID, entryID)
}

// ListEntries returns the user's entries, newest first, narrowed by filter.
func (a *App) ListEntries(ctx context.Context, userID string, f diary.Filter) ([]*diary.Entry, error) {
	return a.repo.List(ctx, userID, f)
}

// ListEntriesByDateRange returns the user's entries within the date range.
func (a *App) ListEntriesByDateRange(ctx context.Context, userID string, from, to time.Time) ([]*diary.Entry, error) {
	return a.repo.ListByDateRange(ctx, userID, from, to)
}

// DeleteEntry hard-deletes the entry and releases its media.
func (a *App) DeleteEntry(ctx context.Context, userID, entryID string) error {
	a.sessions.Drop(entryID)
	return a.repo.Delete(ctx, userID, entryID)
}

// GenerateImage renders a new gallery image for the entry.
func (a *App) GenerateImage(ctx context.Context, userID, entryID string, style generate.Style) (*diary.Entry, error) {
	return a.gallery.GenerateImage(ctx, userID, entryID, style)
}

// SelectImage marks the image at index as the entry's cover.
func (a *App) SelectImage(ctx context.Context, userID, entryID string, index int) (*diary.Entry, error) {
	return a.gallery.SelectImage(ctx, userID, entryID, index)
}

// GenerateAudio renders a new background track for the entry.
func (a *App) GenerateAudio(ctx context.Context, userID, entryID string) (*diary.Entry, error) {
	return a.gallery.GenerateAudio(ctx, userID, entryID)
}

// OpenMedia returns a stored media blob, verifying that the caller owns an
// entry referencing it.
func (a *App) OpenMedia(ctx context.Context, userID, entryID, path string) ([]byte, error) {
	e, err := a.repo.Get(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if !referencesBlob(e, path) {
		return nil, fmt.Errorf("entry %s has no media %q: %w", entryID, path, fault.ErrNotFound)
	}
	return a.blobs.Open(path)
}

// EmotionHistogram reports tag frequencies for the user within the period.
func (a *App) EmotionHistogram(ctx context.Context, userID string, period stats.Period) ([]stats.TagCount, error) {
	return a.stats.EmotionHistogram(ctx, userID, period)
}

// BestMedia reports the user's media-richest entry within the period.
func (a *App) BestMedia(ctx context.Context, userID string, period stats.Period) (*stats.BestMedia, error) {
	return a.stats.Best(ctx, userID, period)
}

// AllTags reports every tag the user has used, sorted.
func (a *App) AllTags(ctx context.Context, userID string) ([]string, error) {
	return a.stats.AllTags(ctx, userID)
}

// persistTranscript snapshots the session's turns into its draft entry.
// Best-effort: the conversation carries on in memory if the write fails.
func (a *App) persistTranscript(ctx context.Context, sess *conversation.Session) {
	_, err := a.repo.Update(ctx, sess.UserID, sess.ID, func(e *diary.Entry) error {
		e.Transcript = append([]conversation.Turn(nil), sess.Turns...)
		return nil
	})
	if err != nil {
		slog.Warn("failed to persist transcript snapshot", "session", sess.ID, "err", err)
	}
}

// discardDraft removes an abandoned draft entry. Best-effort.
func (a *App) discardDraft(ctx context.Context, userID, entryID string) {
	if err := a.repo.Delete(ctx, userID, entryID); err != nil {
		slog.Warn("failed to discard draft", "entry", entryID, "err", err)
	}
}

func referencesBlob(e *diary.Entry, path string) bool {
	for _, img := range e.Images {
		if img.Path == path {
			return true
		}
	}
	for _, track := range e.BGM {
		if track.Path == path {
			return true
		}
	}
	return false
}
