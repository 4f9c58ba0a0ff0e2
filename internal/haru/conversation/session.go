// Package conversation implements the diary conversation core: the
// in-memory session registry, the turn engine that drives the language
// model, and the completion detector that decides when a conversation is
// ready to be wrapped up.
//
// A Session is ephemeral: it lives only while the conversation is active.
// Durability begins once the session is finished and persisted as a diary
// entry.
package conversation

import "time"

// Turn roles. The transcript alternates between the two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a diary conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is an active, not-yet-summarised conversation between a user and
// the diary assistant. The session id doubles as the diary entry id once
// the conversation is persisted, so in-flight references stay valid across
// the draft→saved transition.
type Session struct {
	ID     string // unique session ID, reused as the entry ID
	UserID string // opaque, pre-verified owner identity

	// Date is the diary day the conversation is about, at midnight UTC.
	// Defaults to "today"; may be backdated, never future-dated.
	Date time.Time

	Turns []Turn // ordered transcript (oldest first)

	StartedAt  time.Time
	LastTurnAt time.Time

	// Finished is set by Engine.Finish. A finished session's transcript is
	// frozen; repeated Finish calls return it unchanged.
	Finished bool
}

// Clone returns a deep copy of the session. Mutating the copy does not
// affect the original.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}

// append records a turn and advances the activity clock.
func (s *Session) append(role, content string, at time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content, Timestamp: at})
	s.LastTurnAt = at
}
