package conversation

import "strings"

// Signal is the tri-state completion judgment derived from transcript
// content. It only reports readiness; ending the session is always the
// caller's decision.
type Signal int

const (
	// SignalContinue means the conversation should keep going.
	SignalContinue Signal = iota
	// SignalUserEnd means the last user turn contains an explicit
	// termination phrase ("그만", "여기까지", …).
	SignalUserEnd
	// SignalAssistantEnd means the assistant has offered to wrap up, either
	// via the model's explicit hint or a recognised closing cue in its reply.
	SignalAssistantEnd
)

// PhraseConfig holds the configurable phrase lists the detector matches
// against. Both lists are substring-matched, which is how the original
// product behaves ("이제 그만할래" still counts as "그만").
type PhraseConfig struct {
	// UserEndPhrases are phrases in a user turn that request an end.
	UserEndPhrases []string
	// AssistantEndCues are phrases in an assistant turn that offer to wrap
	// up the conversation.
	AssistantEndCues []string
}

// DefaultPhraseConfig returns the built-in Korean phrase lists. Deployments
// override them through the service config file.
func DefaultPhraseConfig() PhraseConfig {
	return PhraseConfig{
		UserEndPhrases:   []string{"그만", "여기까지", "끝", "종료", "마무리"},
		AssistantEndCues: []string{"정리해드릴까요", "마무리할까요"},
	}
}

// DetectCompletion inspects the tail of the transcript and returns the
// completion signal. It is a pure function of its inputs: no collaborator
// is consulted, so policy stays testable without a model.
//
// modelHint carries the language model's own ready-to-end judgment for the
// most recent assistant turn. User phrases win over assistant cues: an
// explicit "그만" is a stronger signal than an offer to wrap up.
func DetectCompletion(turns []Turn, cfg PhraseConfig, modelHint bool) Signal {
	lastUser, lastAssistant := "", ""
	for i := len(turns) - 1; i >= 0; i-- {
		switch turns[i].Role {
		case RoleUser:
			if lastUser == "" {
				lastUser = turns[i].Content
			}
		case RoleAssistant:
			if lastAssistant == "" {
				lastAssistant = turns[i].Content
			}
		}
		if lastUser != "" && lastAssistant != "" {
			break
		}
	}

	if containsAny(lastUser, cfg.UserEndPhrases) {
		return SignalUserEnd
	}
	if modelHint || containsAny(lastAssistant, cfg.AssistantEndCues) {
		return SignalAssistantEnd
	}
	return SignalContinue
}

func containsAny(s string, phrases []string) bool {
	if s == "" {
		return false
	}
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
