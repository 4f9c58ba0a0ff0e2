// Package generate produces the media attached to diary entries: cover
// images rendered from the entry's image prompt, and short background
// tracks rendered from its mood.
package generate

import (
	"context"
	"errors"
)

// ErrContentRejected is returned when the backend refuses a prompt on
// content-policy grounds. Callers surface this to the user instead of
// retrying.
var ErrContentRejected = errors.New("generate: prompt rejected by content policy")

// ImageGenerator renders a single image for the given prompt and returns
// the encoded bytes with their file extension (including the dot).
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (data []byte, ext string, err error)
}

// AudioGenerator renders a short instrumental track for the given prompt.
type AudioGenerator interface {
	GenerateAudio(ctx context.Context, prompt string) (data []byte, ext string, err error)
}
