package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haru-ai/haru/internal/haru/conversation"
	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
)

const dateLayout = "2006-01-02"

// Put inserts or replaces the entry row.
func (s *Store) Put(ctx context.Context, e *diary.Entry) error {
	transcript, err := json.Marshal(e.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	images, err := json.Marshal(e.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}
	bgm, err := json.Marshal(e.BGM)
	if err != nil {
		return fmt.Errorf("failed to encode bgm: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, diary_date, transcript, summary, tags,
		                     image_prompt, bgm_prompt, images, selected_image, bgm,
		                     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			transcript = excluded.transcript,
			summary = excluded.summary,
			tags = excluded.tags,
			image_prompt = excluded.image_prompt,
			bgm_prompt = excluded.bgm_prompt,
			images = excluded.images,
			selected_image = excluded.selected_image,
			bgm = excluded.bgm,
			updated_at = excluded.updated_at
	`, e.ID, e.UserID, e.Date.Format(dateLayout), string(transcript), e.Summary, string(tags),
		e.ImagePrompt, e.BGMPrompt, string(images), e.SelectedImage, string(bgm),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id string) (*diary.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, diary_date, transcript, summary, tags,
		       image_prompt, bgm_prompt, images, selected_image, bgm,
		       created_at, updated_at
		FROM entries
		WHERE id = ?
	`, id)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %s: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// Delete removes an entry row.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", id, fault.ErrNotFound)
	}
	return nil
}

// ListByUser returns all of a user's entries, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*diary.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, diary_date, transcript, summary, tags,
		       image_prompt, bgm_prompt, images, selected_image, bgm,
		       created_at, updated_at
		FROM entries
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByDateRange returns the user's entries with from ≤ diary date ≤ to,
// newest first.
func (s *Store) ListByDateRange(ctx context.Context, userID string, from, to time.Time) ([]*diary.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, diary_date, transcript, summary, tags,
		       image_prompt, bgm_prompt, images, selected_image, bgm,
		       created_at, updated_at
		FROM entries
		WHERE user_id = ? AND diary_date >= ? AND diary_date <= ?
		ORDER BY created_at DESC
	`, userID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries by date range: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountByDate returns how many entries the user holds for the diary date.
func (s *Store) CountByDate(ctx context.Context, userID string, date time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE user_id = ? AND diary_date = ?",
		userID, date.Format(dateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*diary.Entry, error) {
	var (
		e          diary.Entry
		date       string
		transcript string
		tags       string
		images     string
		bgm        string
	)
	err := row.Scan(
		&e.ID, &e.UserID, &date, &transcript, &e.Summary, &tags,
		&e.ImagePrompt, &e.BGMPrompt, &images, &e.SelectedImage, &bgm,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Date, err = time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diary date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(transcript), &e.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &e.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(bgm), &e.BGM); err != nil {
		return nil, fmt.Errorf("failed to decode bgm: %w", err)
	}
	if e.Transcript == nil {
		e.Transcript = []conversation.Turn{}
	}
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*diary.Entry, error) {
	var entries []*diary.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}
