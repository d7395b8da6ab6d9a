package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

const coquiModelPrefix = "tts_models/"

// CoquiSynthesizer runs the Coqui `tts` command line tool.
type CoquiSynthesizer struct {
	binary string
	log    zerolog.Logger
}

func NewCoquiSynthesizer(binary string, log zerolog.Logger) *CoquiSynthesizer {
	if binary == "" {
		binary = "tts"
	}
	return &CoquiSynthesizer{binary: binary, log: log.With().Str("component", "coqui").Logger()}
}

// Resolve accepts Coqui model names such as "tts_models/en/ljspeech/vits".
func (s *CoquiSynthesizer) Resolve(voice string) (string, error) {
	parts := strings.Split(voice, "/")
	if !strings.HasPrefix(voice, coquiModelPrefix) || len(parts) != 4 {
		return "", fmt.Errorf("%q is not a Coqui model name", voice)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%q is not a Coqui model name", voice)
		}
	}
	return voice, nil
}

func (s *CoquiSynthesizer) Synthesize(ctx context.Context, model, text, path string) error {
	cmd := exec.CommandContext(ctx, s.binary,
		"--text", text,
		"--model_name", model,
		"--out_path", path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.log.Debug().Str("model", model).Int("chars", len(text)).Msg("synthesizing page")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return fmt.Errorf("tts exited: %w: %s", err, msg)
	}
	return nil
}
