package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haru-ai/haru/internal/haru/app"
	"github.com/haru-ai/haru/internal/haru/diary"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/httpapi"
	"github.com/haru-ai/haru/internal/haru/llm"
)

var testNow = time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC)

// stubProvider answers every conversational prompt with a fixed reply and
// every summarisation with a fixed result.
type stubProvider struct{}

func (stubProvider) NextTurn(_ context.Context, transcript []llm.Message) (*llm.TurnResult, error) {
	if len(transcript) == 0 {
		return &llm.TurnResult{Reply: "안녕하세요! 오늘 하루는 어땠나요?"}, nil
	}
	return &llm.TurnResult{Reply: "그랬군요. 더 이야기해 주세요."}, nil
}

func (stubProvider) Summarize(context.Context, []llm.Message) (*llm.SummaryResult, error) {
	return &llm.SummaryResult{
		Summary:     "바쁜 하루였지만 잘 마무리했다.",
		EmotionTags: []string{"피곤", "뿌듯"},
		ImagePrompt: "a desk at dusk",
		BGMPrompt:   "mellow jazz",
	}, nil
}

func (stubProvider) Retag(context.Context, string) (*llm.RetagResult, error) {
	return &llm.RetagResult{EmotionTags: []string{"기쁨"}}, nil
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]*diary.Entry
}

func (m *memStore) Put(_ context.Context, e *diary.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e.Clone()
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*diary.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return e.Clone(), nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return fault.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]*diary.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*diary.Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (m *memStore) ListByDateRange(_ context.Context, userID string, from, to time.Time) ([]*diary.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*diary.Entry
	for _, e := range m.entries {
		if e.UserID != userID || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *memStore) CountByDate(_ context.Context, userID string, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID && e.Date.Equal(date) {
			n++
		}
	}
	return n, nil
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
	puts  int
}

func (b *memBlobs) Put(data []byte, ext string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	path := fmt.Sprintf("blob-%d%s", b.puts, ext)
	b.blobs[path] = data
	return path, nil
}

func (b *memBlobs) Open(path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[path]
	if !ok {
		return nil, fault.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, path)
	return nil
}

type stubImages struct{}

func (stubImages) GenerateImage(context.Context, string) ([]byte, string, error) {
	return []byte("png-bytes"), ".png", nil
}

type stubAudio struct{}

func (stubAudio) GenerateAudio(context.Context, string) ([]byte, string, error) {
	return []byte("wav-bytes"), ".wav", nil
}

func newTestServer() *httpapi.Server {
	application := app.New(app.Deps{
		Entries:  &memStore{entries: make(map[string]*diary.Entry)},
		Blobs:    &memBlobs{blobs: make(map[string][]byte)},
		Provider: stubProvider{},
		Images:   stubImages{},
		Audio:    stubAudio{},
		Now:      func() time.Time { return testNow },
	})
	return httpapi.NewServer(":0", application)
}

// do sends a JSON request as user and decodes the response body into out
// when out is non-nil.
func do(t *testing.T, srv *httpapi.Server, method, target, user, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		r.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if out != nil && w.Code < 300 {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, target, err)
		}
	}
	return w
}

type entryPayload struct {
	ID            string   `json:"id"`
	Date          string   `json:"date"`
	Draft         bool     `json:"draft"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	SelectedImage int      `json:"selected_image"`
	Images        []struct {
		Path  string `json:"path"`
		Style string `json:"style"`
	} `json:"images"`
	BGM []struct {
		Path string `json:"path"`
	} `json:"bgm"`
}

// runDiary drives a conversation to a saved entry over the API.
func runDiary(t *testing.T, srv *httpapi.Server, user string) entryPayload {
	t.Helper()
	var start struct {
		SessionID string `json:"session_id"`
	}
	if w := do(t, srv, "POST", "/api/session/start", user, "", &start); w.Code != http.StatusCreated {
		t.Fatalf("start: status %d: %s", w.Code, w.Body)
	}
	if w := do(t, srv, "POST", "/api/session/"+start.SessionID+"/message", user,
		`{"message":"오늘 바빴어"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("message: status %d: %s", w.Code, w.Body)
	}
	var entry entryPayload
	if w := do(t, srv, "POST", "/api/session/"+start.SessionID+"/end", user, "", &entry); w.Code != http.StatusOK {
		t.Fatalf("end: status %d: %s", w.Code, w.Body)
	}
	return entry
}

func TestHealth(t *testing.T) {
	srv := newTestServer()

	var res struct {
		Status string `json:"status"`
	}
	w := do(t, srv, "GET", "/health", "", "", &res)
	if w.Code != http.StatusOK || res.Status != "ok" {
		t.Fatalf("health = %d %q", w.Code, res.Status)
	}
}

func TestMissingIdentity(t *testing.T) {
	srv := newTestServer()

	for _, target := range []string{"/api/session/start", "/api/diaries", "/api/stats/tags"} {
		method := "GET"
		if strings.HasSuffix(target, "start") {
			method = "POST"
		}
		if w := do(t, srv, method, target, "", "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without identity: status %d", method, target, w.Code)
		}
	}
}

func TestDiaryFlow(t *testing.T) {
	srv := newTestServer()

	entry := runDiary(t, srv, "alice")
	if entry.Draft {
		t.Error("saved entry reported as draft")
	}
	if entry.Date != "2026-08-28" {
		t.Errorf("date = %q", entry.Date)
	}
	if entry.Summary == "" || len(entry.Tags) != 2 {
		t.Errorf("summary = %q, tags = %v", entry.Summary, entry.Tags)
	}

	var listed []entryPayload
	if w := do(t, srv, "GET", "/api/diaries", "alice", "", &listed); w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	if len(listed) != 1 || listed[0].ID != entry.ID {
		t.Errorf("listed = %+v", listed)
	}

	// Another user sees nothing of it.
	if w := do(t, srv, "GET", "/api/diaries/"+entry.ID, "bob", "", nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign get: status %d", w.Code)
	}
}

func TestSessionStart_BadDate(t *testing.T) {
	srv := newTestServer()

	if w := do(t, srv, "POST", "/api/session/start", "alice", `{"date":"28-08-2026"}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("malformed date: status %d", w.Code)
	}
	if w := do(t, srv, "POST", "/api/session/start", "alice", `{"date":"2026-09-01"}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("future date: status %d", w.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	// Unknown entry → 404.
	if w := do(t, srv, "GET", "/api/diaries/nope", "alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown entry: status %d", w.Code)
	}
	// Malformed body → 400.
	if w := do(t, srv, "PUT", "/api/diaries/"+entry.ID+"/summary", "alice", `{broken`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d", w.Code)
	}
	// Out-of-range selection → 400.
	if w := do(t, srv, "PUT", "/api/diaries/"+entry.ID+"/images/selected", "alice", `{"index":5}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad selection: status %d", w.Code)
	}
	// Ending a finished session → 404, it is gone.
	if w := do(t, srv, "POST", "/api/session/"+entry.ID+"/end", "alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("re-end: status %d", w.Code)
	}

	// The response body is the error envelope.
	w := do(t, srv, "GET", "/api/diaries/nope", "alice", "", nil)
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil || envelope.Error == "" {
		t.Errorf("error envelope = %q, %v", envelope.Error, err)
	}
}

func TestImageQuotaOverHTTP(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	for i := 0; i < diary.MaxImages; i++ {
		if w := do(t, srv, "POST", "/api/diaries/"+entry.ID+"/images", "alice", `{"style":"anime"}`, nil); w.Code != http.StatusCreated {
			t.Fatalf("image %d: status %d: %s", i+1, w.Code, w.Body)
		}
	}
	if w := do(t, srv, "POST", "/api/diaries/"+entry.ID+"/images", "alice", `{"style":"anime"}`, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("over-quota image: status %d", w.Code)
	}
}

func TestMediaServing(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	var withImage entryPayload
	if w := do(t, srv, "POST", "/api/diaries/"+entry.ID+"/images", "alice", `{"style":"watercolor"}`, &withImage); w.Code != http.StatusCreated {
		t.Fatalf("generate image: status %d: %s", w.Code, w.Body)
	}
	if len(withImage.Images) != 1 || withImage.SelectedImage != 0 {
		t.Fatalf("gallery = %+v", withImage)
	}
	if withImage.Images[0].Style != "watercolor" {
		t.Errorf("style = %q", withImage.Images[0].Style)
	}

	path := withImage.Images[0].Path
	w := do(t, srv, "GET", "/api/diaries/"+entry.ID+"/media/"+path, "alice", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("media: status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}

	// A blob the entry does not reference is never served.
	if w := do(t, srv, "GET", "/api/diaries/"+entry.ID+"/media/blob-999.png", "alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unreferenced media: status %d", w.Code)
	}
}

func TestUpdateSummaryOverHTTP(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	var updated entryPayload
	w := do(t, srv, "PUT", "/api/diaries/"+entry.ID+"/summary", "alice",
		`{"summary":"고쳐 쓴 일기"}`, &updated)
	if w.Code != http.StatusOK {
		t.Fatalf("update summary: status %d: %s", w.Code, w.Body)
	}
	if updated.Summary != "고쳐 쓴 일기" {
		t.Errorf("Summary = %q", updated.Summary)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "기쁨" {
		t.Errorf("Tags = %v", updated.Tags)
	}
}

func TestDeleteEntryOverHTTP(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	if w := do(t, srv, "DELETE", "/api/diaries/"+entry.ID, "alice", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/diaries/"+entry.ID, "alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d", w.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	srv := newTestServer()
	entry := runDiary(t, srv, "alice")

	var hist []struct {
		Tag   string `json:"tag"`
		Count int    `json:"count"`
	}
	if w := do(t, srv, "GET", "/api/stats/emotions?period=week", "alice", "", &hist); w.Code != http.StatusOK {
		t.Fatalf("emotions: status %d", w.Code)
	}
	if len(hist) != 2 {
		t.Errorf("histogram = %+v", hist)
	}

	if w := do(t, srv, "GET", "/api/stats/emotions?period=century", "alice", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad period: status %d", w.Code)
	}

	// No media yet → a null best entry, not an error.
	var best map[string]json.RawMessage
	if w := do(t, srv, "GET", "/api/stats/best-media", "alice", "", &best); w.Code != http.StatusOK {
		t.Fatalf("best-media: status %d", w.Code)
	}
	if string(best["entry"]) != "null" {
		t.Errorf("entry = %s, want null", best["entry"])
	}

	if w := do(t, srv, "POST", "/api/diaries/"+entry.ID+"/bgm", "alice", "", nil); w.Code != http.StatusCreated {
		t.Fatalf("bgm: status %d: %s", w.Code, w.Body)
	}
	if w := do(t, srv, "GET", "/api/stats/best-media", "alice", "", &best); w.Code != http.StatusOK {
		t.Fatalf("best-media: status %d", w.Code)
	}
	var bestEntry entryPayload
	if err := json.Unmarshal(best["entry"], &bestEntry); err != nil || bestEntry.ID != entry.ID {
		t.Errorf("best entry = %s, %v", best["entry"], err)
	}

	var tags struct {
		Tags []string `json:"tags"`
	}
	if w := do(t, srv, "GET", "/api/stats/tags", "alice", "", &tags); w.Code != http.StatusOK {
		t.Fatalf("tags: status %d", w.Code)
	}
	if len(tags.Tags) != 2 {
		t.Errorf("tags = %v", tags.Tags)
	}
}

func TestDiscardSessionOverHTTP(t *testing.T) {
	srv := newTestServer()

	var start struct {
		SessionID string `json:"session_id"`
	}
	if w := do(t, srv, "POST", "/api/session/start", "alice", "", &start); w.Code != http.StatusCreated {
		t.Fatalf("start: status %d", w.Code)
	}
	if w := do(t, srv, "DELETE", "/api/session/"+start.SessionID, "alice", "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("discard: status %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/diaries/"+start.SessionID, "alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("draft after discard: status %d", w.Code)
	}
}
