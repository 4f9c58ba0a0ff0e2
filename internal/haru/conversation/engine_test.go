package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/haru-ai/haru/internal/haru/conversation"
	"github.com/haru-ai/haru/internal/haru/fault"
	"github.com/haru-ai/haru/internal/haru/llm"
)

// stubProvider serves scripted NextTurn results and records the transcripts
// it was handed.
type stubProvider struct {
	replies     []llm.TurnResult
	err         error
	calls       int
	transcripts [][]llm.Message
}

func (s *stubProvider) NextTurn(_ context.Context, transcript []llm.Message) (*llm.TurnResult, error) {
	s.transcripts = append(s.transcripts, transcript)
	if s.err != nil {
		return nil, s.err
	}
	r := s.replies[s.calls%len(s.replies)]
	s.calls++
	return &r, nil
}

func (s *stubProvider) Summarize(context.Context, []llm.Message) (*llm.SummaryResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubProvider) Retag(context.Context, string) (*llm.RetagResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, 8, 28, 21, 30, 0, 0, time.UTC)

func newTestEngine(p llm.Provider) *conversation.Engine {
	return conversation.NewEngine(p, conversation.EngineConfig{Now: fixedClock(testNow)})
}

func TestEngine_StartGreets(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "오늘 하루 어땠어요?"}}}
	eng := newTestEngine(stub)

	sess, greeting, err := eng.Start(context.Background(), "user-1", time.Time{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if greeting != "오늘 하루 어땠어요?" {
		t.Errorf("greeting = %q", greeting)
	}
	if len(sess.Turns) != 1 || sess.Turns[0].Role != conversation.RoleAssistant {
		t.Fatalf("expected single assistant turn, got %+v", sess.Turns)
	}
	wantDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if !sess.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", sess.Date, wantDate)
	}
}

func TestEngine_StartRejectsFutureDate(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "hello"}}}
	eng := newTestEngine(stub)

	_, _, err := eng.Start(context.Background(), "user-1", testNow.AddDate(0, 0, 1))
	if !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(stub.transcripts) != 0 {
		t.Error("model was called for a rejected date")
	}
}

func TestEngine_StartAllowsBackdating(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "hello"}}}
	eng := newTestEngine(stub)

	sess, _, err := eng.Start(context.Background(), "user-1", testNow.AddDate(0, 0, -3))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	if !sess.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", sess.Date, want)
	}
}

func TestEngine_AdvanceAppendsBothTurns(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "힘드셨겠어요. 무슨 일이 있었나요?"}}}
	eng := newTestEngine(stub)

	sess, _, err := eng.Start(context.Background(), "user-1", time.Time{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, complete, err := eng.Advance(context.Background(), sess, "오늘 힘들었어")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if complete {
		t.Error("ordinary turn should not complete")
	}
	if reply == "" {
		t.Error("empty reply")
	}
	if len(sess.Turns) != 3 {
		t.Fatalf("len(Turns) = %d, want 3", len(sess.Turns))
	}
	if sess.Turns[1].Role != conversation.RoleUser || sess.Turns[1].Content != "오늘 힘들었어" {
		t.Errorf("user turn = %+v", sess.Turns[1])
	}

	// Advance hands the model everything up to and including the new user
	// turn.
	last := stub.transcripts[len(stub.transcripts)-1]
	if len(last) != 2 {
		t.Fatalf("model transcript length = %d, want 2", len(last))
	}
}

func TestEngine_AdvanceRejectsEmptyMessage(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "x"}}}
	eng := newTestEngine(stub)

	sess := &conversation.Session{ID: "s", UserID: "user-1"}
	_, _, err := eng.Advance(context.Background(), sess, "   ")
	if !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(sess.Turns) != 0 {
		t.Error("empty message must not be appended")
	}
}

func TestEngine_AdvanceKeepsUserTurnOnModelFailure(t *testing.T) {
	stub := &stubProvider{err: errors.New("backend down")}
	eng := newTestEngine(stub)

	sess := &conversation.Session{ID: "s", UserID: "user-1"}
	_, _, err := eng.Advance(context.Background(), sess, "내 얘기 들어줘")
	if !errors.Is(err, fault.ErrGenerationUnavailable) {
		t.Fatalf("err = %v, want ErrGenerationUnavailable", err)
	}

	// The user turn survives the failure so the retry does not make the
	// user repeat themselves.
	if len(sess.Turns) != 1 || sess.Turns[0].Content != "내 얘기 들어줘" {
		t.Fatalf("Turns = %+v, want the user turn preserved", sess.Turns)
	}
}

func TestEngine_AdvanceSignalsCompletion(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "오늘도 수고했어요."}}}
	eng := newTestEngine(stub)

	sess := &conversation.Session{ID: "s", UserID: "user-1"}
	_, complete, err := eng.Advance(context.Background(), sess, "그만 할래")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !complete {
		t.Error("end phrase should signal completion")
	}
}

func TestEngine_AdvanceHonoursModelHint(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "충분히 들었어요.", ReadyToEnd: true}}}
	eng := newTestEngine(stub)

	sess := &conversation.Session{ID: "s", UserID: "user-1"}
	_, complete, err := eng.Advance(context.Background(), sess, "그랬어")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !complete {
		t.Error("model ready_to_end hint should signal completion")
	}
}

func TestEngine_FinishIsIdempotent(t *testing.T) {
	stub := &stubProvider{replies: []llm.TurnResult{{Reply: "reply"}}}
	eng := newTestEngine(stub)

	sess := &conversation.Session{ID: "s", UserID: "user-1"}
	if _, _, err := eng.Advance(context.Background(), sess, "첫번째"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	first := eng.Finish(sess)
	second := eng.Finish(sess)

	if !sess.Finished {
		t.Error("session not marked finished")
	}
	if len(first) != len(second) {
		t.Fatalf("transcripts differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("turn %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if stub.calls != 1 {
		t.Errorf("Finish must not call the model; calls = %d", stub.calls)
	}
}
