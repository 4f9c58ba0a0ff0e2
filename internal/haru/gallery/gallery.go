// Package gallery manages the media attached to a diary entry: the image
// gallery with its selected cover, and the background-music tracks.
//
// All mutations run under the entry's write lock, so two concurrent
// requests against the same entry serialize and the quota can never be
// overshot. Quota and ownership are checked before any generation backend
// is called; a failed generation leaves the entry exactly as it was.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/generate"
	"github.com/haru-ai/haru/internal/haru/llm"
)

// BlobPutter stores generated media bytes and returns an opaque path.
type BlobPutter interface {
	Put(data []byte, ext string) (string, error)
}

// Config holds the manager settings.
type Config struct {
	// CallTimeout bounds each generation call. Defaults to 180 seconds.
	CallTimeout time.Duration

	// RateLimit optionally caps generation requests per user. Nil means
	// unlimited.
	RateLimit *llm.RateLimiter

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Manager attaches generated media to entries.
type Manager struct {
	repo    *diary.Repository
	images  generate.ImageGenerator
	audio   generate.AudioGenerator
	blobs   BlobPutter
	limiter *llm.RateLimiter
	timeout time.Duration
	now     func() time.Time
}

// NewManager creates a Manager.
func NewManager(repo *diary.Repository, images generate.ImageGenerator, audio generate.AudioGenerator, blobs BlobPutter, cfg Config) *Manager {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 180 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		repo:    repo,
		images:  images,
		audio:   audio,
		blobs:   blobs,
		limiter: cfg.RateLimit,
		timeout: cfg.CallTimeout,
		now:     cfg.Now,
	}
}

// GenerateImage renders a new image for the entry in the given style and
// appends it to the gallery. The new image becomes the selected cover.
// A full gallery fails with fault.ErrQuotaExceeded before any backend call.
func (m *Manager) GenerateImage(ctx context.Context, userID, entryID string, style generate.Style) (*diary.Entry, error) {
	return m.repo.Update(ctx, userID, entryID, func(e *diary.Entry) error {
		if len(e.Images) >= diary.MaxImages {
			return fmt.Errorf("entry %s gallery is full (%d images): %w",
				entryID, diary.MaxImages, fault.ErrQuotaExceeded)
		}
		if err := m.allow(userID); err != nil {
			return err
		}

		seed := e.ImagePrompt
		if seed == "" {
			seed = e.Summary
		}
		prompt := generate.ImagePrompt(seed, style)

		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		data, ext, err := m.images.GenerateImage(callCtx, prompt)
		if err != nil {
			return generationErr("image generation", err)
		}

		path, err := m.blobs.Put(data, ext)
		if err != nil {
			return fmt.Errorf("gallery: store image: %w", err)
		}

		e.Images = append(e.Images, diary.ImageRef{
			Path:      path,
			Style:     string(style),
			CreatedAt: m.now().UTC(),
		})
		e.SelectedImage = len(e.Images) - 1
		return nil
	})
}

// SelectImage marks the image at index as the entry's cover. The index
// must address an existing image; otherwise the selection is left
// untouched and fault.ErrInvalidInput is returned. No backend is called.
func (m *Manager) SelectImage(ctx context.Context, userID, entryID string, index int) (*diary.Entry, error) {
	return m.repo.Update(ctx, userID, entryID, func(e *diary.Entry) error {
		if index < 0 || index >= len(e.Images) {
			return fmt.Errorf("image index %d out of range [0,%d): %w",
				index, len(e.Images), fault.ErrInvalidInput)
		}
		e.SelectedImage = index
		return nil
	})
}

// GenerateAudio renders a new background track for the entry from its
// emotion tags and prompt seed.
func (m *Manager) GenerateAudio(ctx context.Context, userID, entryID string) (*diary.Entry, error) {
	return m.repo.Update(ctx, userID, entryID, func(e *diary.Entry) error {
		if len(e.BGM) >= diary.MaxBGM {
			return fmt.Errorf("entry %s already holds %d bgm tracks: %w",
				entryID, diary.MaxBGM, fault.ErrQuotaExceeded)
		}
		if err := m.allow(userID); err != nil {
			return err
		}

		prompt := generate.MusicPrompt(e.Tags, e.BGMPrompt)

		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		data, ext, err := m.audio.GenerateAudio(callCtx, prompt)
		if err != nil {
			return generationErr("bgm generation", err)
		}

		path, err := m.blobs.Put(data, ext)
		if err != nil {
			return fmt.Errorf("gallery: store bgm: %w", err)
		}

		e.BGM = append(e.BGM, diary.AudioRef{
			Path:      path,
			CreatedAt: m.now().UTC(),
		})
		return nil
	})
}

func (m *Manager) allow(userID string) error {
	if m.limiter != nil && !m.limiter.Allow(userID) {
		return fmt.Errorf("generation rate limit reached for user: %w", fault.ErrQuotaExceeded)
	}
	return nil
}

func generationErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s timed out: %w", op, fault.ErrGenerationTimeout)
	case errors.Is(err, generate.ErrContentRejected):
		return fmt.Errorf("%s: %v: %w", op, err, fault.ErrInvalidInput)
	default:
		return fmt.Errorf("%s failed: %v: %w", op, err, fault.ErrGenerationUnavailable)
	}
}
