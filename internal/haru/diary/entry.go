// Package diary defines the durable diary entry model and the repository
// facade that guards its invariants: bounded media collections, a valid
// image selection, and at most two saved entries per user per day.
package diary

import (
	"time"

	"github.com/haru-ai/haru/internal/haru/conversation"
)

// Per-entry media quotas. Checked before any generation collaborator is
// invoked so a request that cannot succeed costs nothing.
const (
	MaxImages = 6
	MaxBGM    = 2
)

// MaxEntriesPerDay caps how many saved entries a user may hold for one
// diary date.
const MaxEntriesPerDay = 2

// ImageRef points at a generated image in blob storage.
type ImageRef struct {
	// Path is the opaque blob-storage path of the binary.
	Path string `json:"path"`
	// Style is the visual style the image was generated with.
	Style string `json:"style"`
	// CreatedAt is when the image was generated.
	CreatedAt time.Time `json:"created_at"`
}

// AudioRef points at a generated background-music track in blob storage.
type AudioRef struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is a durable diary record. Its id is the originating session id, so
// references held by the UI stay valid across the draft→saved transition.
//
// A nil/empty Summary means the entry is still a draft: the conversation
// happened (or is happening) but was never summarised.
type Entry struct {
	ID     string
	UserID string

	// Date is the diary day at midnight UTC. Never in the future relative
	// to the owner's day.
	Date time.Time

	// Transcript is the full conversation, kept for traceability even
	// after summarisation.
	Transcript []conversation.Turn

	// Summary is the finalised diary text; empty for drafts.
	Summary string

	// Tags are emotion tags in relevance order, duplicates collapsed,
	// stored without a leading '#'.
	Tags []string

	// ImagePrompt and BGMPrompt are generation seeds derived at summarise
	// time and refreshed when the summary is edited.
	ImagePrompt string
	BGMPrompt   string

	// Images is the gallery, bounded by MaxImages.
	Images []ImageRef

	// SelectedImage indexes the gallery image shown by default. Valid
	// whenever Images is non-empty; meaningless when it is empty.
	SelectedImage int

	// BGM holds generated audio tracks, bounded by MaxBGM. The most recent
	// track is the one served by default.
	BGM []AudioRef

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDraft reports whether the entry has never been summarised.
func (e *Entry) IsDraft() bool { return e.Summary == "" }

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Transcript = append([]conversation.Turn(nil), e.Transcript...)
	cp.Tags = append([]string(nil), e.Tags...)
	cp.Images = append([]ImageRef(nil), e.Images...)
	cp.BGM = append([]AudioRef(nil), e.BGM...)
	return &cp
}

// HasTag reports whether tag is in the entry's tag set (exact match).
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Filter narrows List results. Zero fields match everything; set fields
// combine with AND semantics.
type Filter struct {
	// Keyword is matched case-insensitively as a substring of the summary.
	Keyword string
	// Tag must match one of the entry's tags exactly.
	Tag string
}
