package audiobook

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"astra/backend/internal/apperr"
)

// Engine is an external text-to-speech backend.
type Engine interface {
	// Resolve maps a catalog voice name to the model the engine runs.
	Resolve(voice string) (model string, err error)
	// Synthesize renders text to a WAV file at path.
	Synthesize(ctx context.Context, model, text, path string) error
}

// PagePath is where the intermediate audio for a 1-based page is written.
func PagePath(output string, page int) string {
	return fmt.Sprintf("%s_page_%d.wav", output, page)
}

// synthesizePage renders one sanitized page. It returns false when the page
// has nothing speakable. A page file left by an earlier attempt is reused.
func synthesizePage(ctx context.Context, engine Engine, voice, model, text, path string) (bool, error) {
	if !Speakable(text) {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}

	tmp := fmt.Sprintf("%s.partial-%s.wav", path, uuid.NewString())
	if err := engine.Synthesize(ctx, model, text, tmp); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		return false, &apperr.SynthesisError{Voice: voice, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("publish page audio: %w", err)
	}
	return true, nil
}
