package generate_test

import (
	"strings"
	"testing"

	"github.com/haru-ai/haru/internal/haru/generate"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want generate.Style
	}{
		{"watercolor", generate.StyleWatercolor},
		{"ANIME", generate.StyleAnime},
		{" oil_painting ", generate.StyleOilPainting},
		{"vaporwave", generate.DefaultStyle},
		{"", generate.DefaultStyle},
	}

	for _, tc := range cases {
		if got := generate.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestImagePrompt_IncludesSeedAndStyle(t *testing.T) {
	p := generate.ImagePrompt("a quiet rainy street", generate.StyleSketch)

	if !strings.Contains(p, "a quiet rainy street") {
		t.Errorf("prompt %q missing seed", p)
	}
	if !strings.Contains(p, "pencil sketch") {
		t.Errorf("prompt %q missing style suffix", p)
	}
	if !strings.Contains(p, "without any text") {
		t.Errorf("prompt %q missing no-text instruction", p)
	}
}

func TestImagePrompt_UnknownStyleFallsBack(t *testing.T) {
	got := generate.ImagePrompt("seed", generate.Style("nope"))
	want := generate.ImagePrompt("seed", generate.DefaultStyle)
	if got != want {
		t.Errorf("unknown style prompt = %q, want default-style prompt", got)
	}
}

func TestMusicPrompt(t *testing.T) {
	cases := []struct {
		name string
		tags []string
		seed string
		want func(string) bool
	}{
		{
			name: "no input falls back to default",
			want: func(p string) bool { return p == generate.DefaultMusicPrompt },
		},
		{
			name: "known tag maps to mood fragment",
			tags: []string{"기쁨"},
			want: func(p string) bool { return strings.Contains(p, "happy upbeat") },
		},
		{
			name: "unknown tags are skipped",
			tags: []string{"미지의감정"},
			want: func(p string) bool { return p == generate.DefaultMusicPrompt },
		},
		{
			name: "seed is appended",
			tags: []string{"평화"},
			seed: "soft acoustic guitar",
			want: func(p string) bool {
				return strings.Contains(p, "peaceful calm") && strings.Contains(p, "soft acoustic guitar")
			},
		},
		{
			name: "at most two fragments",
			tags: []string{"기쁨", "행복", "설렘"},
			want: func(p string) bool {
				return strings.Contains(p, "happy upbeat") &&
					strings.Contains(p, "joyful warm") &&
					!strings.Contains(p, "exciting anticipatory")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := generate.MusicPrompt(tc.tags, tc.seed)
			if !tc.want(got) {
				t.Errorf("MusicPrompt(%v, %q) = %q", tc.tags, tc.seed, got)
			}
		})
	}
}

func TestStyles_CoversCatalogue(t *testing.T) {
	styles := generate.Styles()
	if len(styles) != 6 {
		t.Fatalf("len(Styles()) = %d, want 6", len(styles))
	}
	for _, s := range styles {
		if generate.Normalize(string(s)) != s {
			t.Errorf("style %q does not normalise to itself", s)
		}
	}
}
