package diary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haru-ai/haru/common/keymutex"
	"github.com/haru-ai/haru/internal/haru/fault"
)

// EntryStore is the durable row storage the repository drives. rows are
// keyed by entry id with secondary lookup by (user, date). Implementations
// return fault.ErrNotFound for unknown ids and list results in descending
// creation-time order.
type EntryStore interface {
	Put(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*Entry, error)
	ListByDateRange(ctx context.Context, userID string, from, to time.Time) ([]*Entry, error)
	CountByDate(ctx context.Context, userID string, date time.Time) (int, error)
}

// BlobStore is the binary storage for generated images and audio,
// addressed by opaque path.
type BlobStore interface {
	Delete(path string) error
}

// Repository is the diary persistence facade. It owns the per-entry
// single-writer discipline (a keyed mutex, so concurrent mutations of the
// same entry serialize while distinct entries proceed in parallel),
// enforces the entry invariants on every write, and releases generated
// blobs when an entry is hard-deleted so binary storage does not leak.
type Repository struct {
	entries EntryStore
	blobs   BlobStore
	locks   *keymutex.KeyMutex
	now     func() time.Time
}

// NewRepository creates a Repository over the given stores. now overrides
// the clock for tests; nil defaults to time.Now.
func NewRepository(entries EntryStore, blobs BlobStore, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{
		entries: entries,
		blobs:   blobs,
		locks:   keymutex.New(),
		now:     now,
	}
}

// CreateDraft persists a brand-new draft entry. It fails with
// fault.ErrConflict when the (user, date) slot already holds
// MaxEntriesPerDay entries.
func (r *Repository) CreateDraft(ctx context.Context, e *Entry) error {
	unlock := r.locks.Lock(e.ID)
	defer unlock()

	if err := validate(e); err != nil {
		return err
	}

	n, err := r.entries.CountByDate(ctx, e.UserID, e.Date)
	if err != nil {
		return fmt.Errorf("diary: count by date: %w", err)
	}
	if n >= MaxEntriesPerDay {
		return fmt.Errorf("date %s already holds %d entries: %w",
			e.Date.Format("2006-01-02"), n, fault.ErrConflict)
	}

	now := r.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := r.entries.Put(ctx, e); err != nil {
		return fmt.Errorf("diary: create draft: %w", err)
	}
	return nil
}

// Get returns the entry, verifying ownership.
func (r *Repository) Get(ctx context.Context, userID, id string) (*Entry, error) {
	e, err := r.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, fmt.Errorf("entry %s is not owned by caller: %w", id, fault.ErrForbidden)
	}
	return e, nil
}

// Update applies fn to the entry under the per-entry lock and persists the
// result. fn may block on a generation collaborator; the lock is held for
// the duration so a concurrent mutation of the same entry waits its turn.
// If fn returns an error nothing is persisted.
func (r *Repository) Update(ctx context.Context, userID, id string, fn func(*Entry) error) (*Entry, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	e, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := fn(e); err != nil {
		return nil, err
	}
	if err := validate(e); err != nil {
		return nil, err
	}

	e.UpdatedAt = r.now().UTC()
	if err := r.entries.Put(ctx, e); err != nil {
		return nil, fmt.Errorf("diary: update entry %s: %w", id, err)
	}
	return e, nil
}

// Delete hard-deletes the entry and releases its generated binaries from
// blob storage. Blob release is best-effort: a failing unlink is logged and
// does not resurrect the row.
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	e, err := r.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := r.entries.Delete(ctx, id); err != nil {
		return fmt.Errorf("diary: delete entry %s: %w", id, err)
	}

	for _, img := range e.Images {
		if err := r.blobs.Delete(img.Path); err != nil {
			slog.Warn("failed to release image blob", "entry", id, "path", img.Path, "err", err)
		}
	}
	for _, track := range e.BGM {
		if err := r.blobs.Delete(track.Path); err != nil {
			slog.Warn("failed to release bgm blob", "entry", id, "path", track.Path, "err", err)
		}
	}
	return nil
}

// List returns the user's entries, newest first, narrowed by filter.
// Keyword matching is done here rather than in SQL so it stays correct for
// non-ASCII summaries.
func (r *Repository) List(ctx context.Context, userID string, f Filter) ([]*Entry, error) {
	all, err := r.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("diary: list: %w", err)
	}
	return applyFilter(all, f), nil
}

// ListByDateRange returns the user's entries with from ≤ date ≤ to, newest
// first.
func (r *Repository) ListByDateRange(ctx context.Context, userID string, from, to time.Time) ([]*Entry, error) {
	out, err := r.entries.ListByDateRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("diary: list by date range: %w", err)
	}
	return out, nil
}

// DraftsForDate returns the user's un-summarised entries for the given
// diary date. Used by the session-start cleanup policy.
func (r *Repository) DraftsForDate(ctx context.Context, userID string, date time.Time) ([]*Entry, error) {
	entries, err := r.entries.ListByDateRange(ctx, userID, date, date)
	if err != nil {
		return nil, fmt.Errorf("diary: drafts for date: %w", err)
	}
	var drafts []*Entry
	for _, e := range entries {
		if e.IsDraft() {
			drafts = append(drafts, e)
		}
	}
	return drafts, nil
}

// CountForDate returns how many entries (drafts included) the user holds
// for the diary date.
func (r *Repository) CountForDate(ctx context.Context, userID string, date time.Time) (int, error) {
	return r.entries.CountByDate(ctx, userID, date)
}

// validate checks the entry invariants that must hold after any write.
func validate(e *Entry) error {
	if e.ID == "" || e.UserID == "" {
		return fmt.Errorf("entry id and user id are required: %w", fault.ErrInvalidInput)
	}
	if len(e.Images) > MaxImages {
		return fmt.Errorf("entry %s holds %d images (max %d): %w",
			e.ID, len(e.Images), MaxImages, fault.ErrQuotaExceeded)
	}
	if len(e.BGM) > MaxBGM {
		return fmt.Errorf("entry %s holds %d bgm tracks (max %d): %w",
			e.ID, len(e.BGM), MaxBGM, fault.ErrQuotaExceeded)
	}
	if len(e.Images) > 0 && (e.SelectedImage < 0 || e.SelectedImage >= len(e.Images)) {
		return fmt.Errorf("entry %s selected image %d out of range [0,%d): %w",
			e.ID, e.SelectedImage, len(e.Images), fault.ErrInvalidInput)
	}
	return nil
}

// applyFilter narrows entries by the keyword/tag filter with AND semantics.
func applyFilter(entries []*Entry, f Filter) []*Entry {
	if f.Keyword == "" && f.Tag == "" {
		return entries
	}
	keyword := strings.ToLower(f.Keyword)
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if keyword != "" && !strings.Contains(strings.ToLower(e.Summary), keyword) {
			continue
		}
		if f.Tag != "" && !e.HasTag(f.Tag) {
			continue
		}
		out = append(out, e)
	}
	return out
}
