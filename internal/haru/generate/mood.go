package generate

import "strings"

// moodPrompts maps emotion tags to music prompts. Tags are the Korean
// labels the summariser emits.
var moodPrompts = map[string]string{
	"기쁨":  "happy upbeat cheerful cinematic soundtrack, bright and energetic, major key",
	"행복":  "joyful warm atmospheric music, positive and heart-warming mood",
	"설렘":  "exciting anticipatory cinematic score, building energy and wonder",
	"평화":  "peaceful calm ambient soundscape, serene and tranquil atmosphere",
	"감사":  "warm grateful emotive soundtrack, heartfelt and sincere tones",
	"사랑":  "romantic tender cinematic music, sweet and soft mood",
	"슬픔":  "melancholic sad emotive score, slow and touching, minor key",
	"우울":  "somber reflective ambient music, introspective and deep mood",
	"피곤":  "relaxing soothing ambient soundscape, calming and minimal",
	"불안":  "tense atmospheric suspenseful music, uneasy and edge-of-seat feeling",
	"화남":  "intense powerful dramatic score, bold and aggressive energy",
	"외로움": "lonely contemplative minimal soundtrack, quiet and introspective",
	"희망":  "hopeful uplifting cinematic music, inspiring and rising energy",
	"그리움": "nostalgic wistful cinematic score, longing and memories",
}

// DefaultMusicPrompt is used when neither the entry's tags nor its prompt
// seed give anything to work with.
const DefaultMusicPrompt = "calm relaxing instrumental ambient music, peaceful and steady mood"

// MusicPrompt composes a music prompt from the entry's emotion tags and
// its stored prompt seed. At most two fragments are combined so the track
// keeps a consistent mood.
func MusicPrompt(tags []string, seed string) string {
	var prompts []string
	for _, tag := range tags {
		if p, ok := moodPrompts[tag]; ok {
			prompts = append(prompts, p)
		}
	}
	if seed = strings.TrimSpace(seed); seed != "" {
		prompts = append(prompts, seed)
	}
	if len(prompts) == 0 {
		return DefaultMusicPrompt
	}
	if len(prompts) > 2 {
		prompts = prompts[:2]
	}
	return strings.Join(prompts, ", ")
}
