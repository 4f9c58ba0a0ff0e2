package stats_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/stats"
)

var testNow = time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC)

// memSource serves canned entries and records the requested window.
type memSource struct {
	entries []*diary.Entry
	from    time.Time
	to      time.Time
	ranged  bool
}

func (m *memSource) ListByUser(_ context.Context, userID string) ([]*diary.Entry, error) {
	return m.forUser(userID), nil
}

func (m *memSource) ListByDateRange(_ context.Context, userID string, from, to time.Time) ([]*diary.Entry, error) {
	m.from, m.to, m.ranged = from, to, true
	var out []*diary.Entry
	for _, e := range m.forUser(userID) {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memSource) forUser(userID string) []*diary.Entry {
	var out []*diary.Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func entry(id string, date time.Time, tags ...string) *diary.Entry {
	return &diary.Entry{
		ID:        id,
		UserID:    "alice",
		Date:      date,
		Summary:   "요약",
		Tags:      tags,
		CreatedAt: date.Add(21 * time.Hour),
	}
}

func TestParsePeriod(t *testing.T) {
	for raw, want := range map[string]stats.Period{
		"":      stats.PeriodAll,
		"week":  stats.PeriodWeek,
		"month": stats.PeriodMonth,
		"all":   stats.PeriodAll,
	} {
		got, err := stats.ParsePeriod(raw)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %q, %v, want %q", raw, got, err, want)
		}
	}

	if _, err := stats.ParsePeriod("year"); !errors.Is(err, fault.ErrInvalidInput) {
		t.Errorf("ParsePeriod(year) = %v, want ErrInvalidInput", err)
	}
}

func TestEmotionHistogram_CountsTagOncePerEntry(t *testing.T) {
	src := &memSource{entries: []*diary.Entry{
		entry("e1", day(26), "기쁨", "감사", "기쁨"),
		entry("e2", day(27), "기쁨", "평화"),
		entry("e3", day(28), "감사"),
	}}
	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	got, err := agg.EmotionHistogram(context.Background(), "alice", stats.PeriodAll)
	if err != nil {
		t.Fatalf("EmotionHistogram: %v", err)
	}

	// Duplicated tags within e1 count once; ties sort by tag.
	want := []stats.TagCount{
		{Tag: "감사", Count: 2},
		{Tag: "기쁨", Count: 2},
		{Tag: "평화", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("histogram = %+v, want %+v", got, want)
	}
}

func TestEmotionHistogram_WeekWindow(t *testing.T) {
	src := &memSource{entries: []*diary.Entry{
		entry("old", day(21), "슬픔"),
		entry("in", day(22), "기쁨"),
		entry("today", day(28), "기쁨"),
	}}
	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	got, err := agg.EmotionHistogram(context.Background(), "alice", stats.PeriodWeek)
	if err != nil {
		t.Fatalf("EmotionHistogram: %v", err)
	}
	want := []stats.TagCount{{Tag: "기쁨", Count: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("histogram = %+v, want %+v", got, want)
	}

	// A week covers today plus the preceding six days.
	if !src.ranged {
		t.Fatal("week period did not use the date-range query")
	}
	if !src.from.Equal(day(22)) || !src.to.Equal(day(28)) {
		t.Errorf("window = [%s, %s], want [2026-08-22, 2026-08-28]",
			src.from.Format("2006-01-02"), src.to.Format("2006-01-02"))
	}
}

func TestEmotionHistogram_MonthWindow(t *testing.T) {
	src := &memSource{}
	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	if _, err := agg.EmotionHistogram(context.Background(), "alice", stats.PeriodMonth); err != nil {
		t.Fatalf("EmotionHistogram: %v", err)
	}
	if !src.from.Equal(time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %s, want 2026-07-28", src.from.Format("2006-01-02"))
	}
}

func TestBest_PrefersMostMediaThenNewest(t *testing.T) {
	rich := entry("rich", day(26))
	rich.Images = []diary.ImageRef{{Path: "a"}, {Path: "b"}}
	rich.BGM = []diary.AudioRef{{Path: "c"}}

	tied := entry("tied", day(27))
	tied.Images = []diary.ImageRef{{Path: "d"}, {Path: "e"}, {Path: "f"}}

	bare := entry("bare", day(28))

	src := &memSource{entries: []*diary.Entry{rich, tied, bare}}
	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	got, err := agg.Best(context.Background(), "alice", stats.PeriodAll)
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if got == nil {
		t.Fatal("Best returned nil")
	}
	// Both media-bearing entries hold three items; the newer one wins.
	if got.Entry.ID != "tied" {
		t.Errorf("best entry = %s, want tied", got.Entry.ID)
	}
	if got.ImageCount != 3 || got.AudioCount != 0 {
		t.Errorf("counts = %d images, %d audio", got.ImageCount, got.AudioCount)
	}
}

func TestBest_NoMediaReturnsNil(t *testing.T) {
	src := &memSource{entries: []*diary.Entry{
		entry("e1", day(27), "기쁨"),
		entry("e2", day(28), "평화"),
	}}
	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	got, err := agg.Best(context.Background(), "alice", stats.PeriodAll)
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if got != nil {
		t.Errorf("Best = %+v, want nil", got)
	}
}

func TestAllTags_SortedDistinct(t *testing.T) {
	src := &memSource{entries: []*diary.Entry{
		entry("e1", day(26), "기쁨", "감사"),
		entry("e2", day(27), "기쁨", "평화"),
	}}
	// A second user's tags never leak in.
	other := entry("x1", day(28), "슬픔")
	other.UserID = "bob"
	src.entries = append(src.entries, other)

	agg := stats.NewAggregator(src, func() time.Time { return testNow })

	got, err := agg.AllTags(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	want := []string{"감사", "기쁨", "평화"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllTags = %v, want %v", got, want)
	}
}

func TestAllTags_EmptyDiary(t *testing.T) {
	agg := stats.NewAggregator(&memSource{}, func() time.Time { return testNow })

	got, err := agg.AllTags(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("AllTags = %v, want empty", got)
	}
}
