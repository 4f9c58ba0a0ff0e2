// Package stats computes read-only aggregates over a user's diary:
// emotion-tag histograms, the entry richest in media, and the set of tags
// in use.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
)

// Period selects the aggregation window.
type Period string

// The supported aggregation windows.
const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a raw period name. Empty means PeriodAll.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case "":
		return PeriodAll, nil
	case PeriodWeek, PeriodMonth, PeriodAll:
		return Period(raw), nil
	default:
		return "", fmt.Errorf("unknown period %q: %w", raw, fault.ErrInvalidInput)
	}
}

// EntrySource is the read side of entry storage the aggregator needs.
type EntrySource interface {
	ListByUser(ctx context.Context, userID string) ([]*diary.Entry, error)
	ListByDateRange(ctx context.Context, userID string, from, to time.Time) ([]*diary.Entry, error)
}

// TagCount is one histogram bucket.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// BestMedia names the entry with the most attached media in the window.
type BestMedia struct {
	Entry      *diary.Entry `json:"entry"`
	ImageCount int          `json:"image_count"`
	AudioCount int          `json:"audio_count"`
}

// Aggregator computes diary statistics. It only reads; it never takes an
// entry's write lock, so a slow generation elsewhere cannot stall it.
type Aggregator struct {
	entries EntrySource
	now     func() time.Time
}

// NewAggregator creates an Aggregator. now overrides the clock for tests;
// nil defaults to time.Now.
func NewAggregator(entries EntrySource, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{entries: entries, now: now}
}

// EmotionHistogram counts how often each emotion tag appears across the
// user's entries in the window. A tag counts once per entry no matter how
// often the entry repeats it. Buckets are ordered by count descending,
// ties broken by tag ascending, so equal inputs always produce equal
// output.
func (a *Aggregator) EmotionHistogram(ctx context.Context, userID string, period Period) ([]TagCount, error) {
	entries, err := a.window(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		seen := make(map[string]struct{}, len(e.Tags))
		for _, tag := range e.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			counts[tag]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

// Best returns the entry with the most attached media (images plus bgm
// tracks) in the window, ties broken by most recent creation time. It
// returns nil when no entry in the window has any media.
func (a *Aggregator) Best(ctx context.Context, userID string, period Period) (*BestMedia, error) {
	entries, err := a.window(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	var best *diary.Entry
	for _, e := range entries {
		if len(e.Images)+len(e.BGM) == 0 {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	return &BestMedia{
		Entry:      best,
		ImageCount: len(best.Images),
		AudioCount: len(best.BGM),
	}, nil
}

// AllTags returns every distinct tag across the user's entries, sorted.
func (a *Aggregator) AllTags(ctx context.Context, userID string) ([]string, error) {
	entries, err := a.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		for _, tag := range e.Tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Aggregator) window(ctx context.Context, userID string, period Period) ([]*diary.Entry, error) {
	now := a.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodWeek:
		return a.entries.ListByDateRange(ctx, userID, to.AddDate(0, 0, -6), to)
	case PeriodMonth:
		return a.entries.ListByDateRange(ctx, userID, to.AddDate(0, -1, 0), to)
	case PeriodAll, "":
		return a.entries.ListByUser(ctx, userID)
	default:
		return nil, fmt.Errorf("unknown period %q: %w", period, fault.ErrInvalidInput)
	}
}

func better(a, b *diary.Entry) bool {
	am, bm := len(a.Images)+len(a.BGM), len(b.Images)+len(b.BGM)
	if am != bm {
		return am > bm
	}
	return a.CreatedAt.After(b.CreatedAt)
}
