package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/haru-ai/haru/internal/haru/conversation"
	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/generate"
	"github.com/haru-ai/haru/internal/haru/stats"
)

const dateLayout = "2006-01-02"

// entryView is the wire shape of a diary entry.
type entryView struct {
	ID            string              `json:"id"`
	Date          string              `json:"date"`
	Draft         bool                `json:"draft"`
	Summary       string              `json:"summary"`
	Tags          []string            `json:"tags"`
	Transcript    []conversation.Turn `json:"transcript"`
	Images        []diary.ImageRef    `json:"images"`
	SelectedImage int                 `json:"selected_image"`
	BGM           []diary.AudioRef    `json:"bgm"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func viewOf(e *diary.Entry) entryView {
	return entryView{
		ID:            e.ID,
		Date:          e.Date.Format(dateLayout),
		Draft:         e.IsDraft(),
		Summary:       e.Summary,
		Tags:          e.Tags,
		Transcript:    e.Transcript,
		Images:        e.Images,
		SelectedImage: e.SelectedImage,
		BGM:           e.BGM,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func viewsOf(entries []*diary.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e))
	}
	return out
}

// decodeBody decodes a JSON request body into out, mapping malformed
// payloads onto the input-validation error.
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed request body: %v: %w", err, fault.ErrInvalidInput)
	}
	return nil
}

// ── sessions ────────────────────────────────────────────────────────────────

type sessionStartRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, empty means today
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request, userID string) {
	// The body is optional: an empty body starts a session for today.
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, fmt.Errorf("malformed request body: %v: %w", err, fault.ErrInvalidInput))
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
		if err != nil {
			writeError(w, fmt.Errorf("malformed date %q: %w", req.Date, fault.ErrInvalidInput))
			return
		}
		date = parsed
	}

	res, err := s.app.StartSession(r.Context(), userID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type sessionMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request, userID string) {
	var req sessionMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.app.Advance(r.Context(), userID, r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request, userID string) {
	entry, err := s.app.EndSession(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func (s *Server) handleSessionDiscard(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.app.DiscardSession(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── entries ─────────────────────────────────────────────────────────────────

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		fromDate, err := time.ParseInLocation(dateLayout, from, time.UTC)
		if err != nil {
			writeError(w, fmt.Errorf("malformed from date %q: %w", from, fault.ErrInvalidInput))
			return
		}
		toDate, err := time.ParseInLocation(dateLayout, to, time.UTC)
		if err != nil {
			writeError(w, fmt.Errorf("malformed to date %q: %w", to, fault.ErrInvalidInput))
			return
		}
		entries, err := s.app.ListEntriesByDateRange(r.Context(), userID, fromDate, toDate)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(entries))
		return
	}

	entries, err := s.app.ListEntries(r.Context(), userID, diary.Filter{
		Keyword: q.Get("keyword"),
		Tag:     q.Get("tag"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(entries))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request, userID string) {
	entry, err := s.app.GetEntry(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.app.DeleteEntry(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateSummaryRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) handleUpdateSummary(w http.ResponseWriter, r *http.Request, userID string) {
	var req updateSummaryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := s.app.UpdateSummary(r.Context(), userID, r.PathValue("id"), req.Summary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

// ── media ───────────────────────────────────────────────────────────────────

type generateImageRequest struct {
	Style string `json:"style"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, userID string) {
	var req generateImageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := s.app.GenerateImage(r.Context(), userID, r.PathValue("id"), generate.Normalize(req.Style))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(entry))
}

type selectImageRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request, userID string) {
	var req selectImageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := s.app.SelectImage(r.Context(), userID, r.PathValue("id"), req.Index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func (s *Server) handleGenerateBGM(w http.ResponseWriter, r *http.Request, userID string) {
	entry, err := s.app.GenerateAudio(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(entry))
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request, userID string) {
	blobPath := r.PathValue("path")
	data, err := s.app.OpenMedia(r.Context(), userID, r.PathValue("id"), blobPath)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(blobPath))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func contentTypeFor(blobPath string) string {
	switch path.Ext(blobPath) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// ── stats ───────────────────────────────────────────────────────────────────

func (s *Server) handleStatsEmotions(w http.ResponseWriter, r *http.Request, userID string) {
	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}

	hist, err := s.app.EmotionHistogram(r.Context(), userID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleStatsBestMedia(w http.ResponseWriter, r *http.Request, userID string) {
	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}

	best, err := s.app.BestMedia(r.Context(), userID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	if best == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entry": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":       viewOf(best.Entry),
		"image_count": best.ImageCount,
		"audio_count": best.AudioCount,
	})
}

func (s *Server) handleStatsTags(w http.ResponseWriter, r *http.Request, userID string) {
	tags, err := s.app.AllTags(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}
