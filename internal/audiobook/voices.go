package audiobook

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"astra/backend/internal/database"
	"astra/backend/internal/models"
)

// DefaultVoices is the catalog seeded when no voices file is configured.
var DefaultVoices = []models.Voice{
	{ID: "1", Name: "tts_models/en/ljspeech/tacotron2-DDC"},
	{ID: "2", Name: "tts_models/en/ljspeech/glow-tts"},
	{ID: "3", Name: "tts_models/en/ljspeech/vits"},
	{ID: "4", Name: "tts_models/de/thorsten/tacotron2-DDC"},
	{ID: "5", Name: "tts_models/fr/css10/vits"},
}

type voicesFile struct {
	Voices []models.Voice `yaml:"voices"`
}

// LoadVoices reads a catalog of the form:
//
//	voices:
//	  - voice_id: "1"
//	    name: tts_models/en/ljspeech/vits
func LoadVoices(path string) ([]models.Voice, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}
	var f voicesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse voices file: %w", err)
	}
	seen := map[string]bool{}
	for i, v := range f.Voices {
		if v.ID == "" || v.Name == "" {
			return nil, fmt.Errorf("voices file entry %d: voice_id and name are required", i)
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("voices file: duplicate voice_id %q", v.ID)
		}
		seen[v.ID] = true
	}
	if len(f.Voices) == 0 {
		return nil, fmt.Errorf("voices file %s lists no voices", path)
	}
	return f.Voices, nil
}

// SeedVoices inserts any catalog voice that is not stored yet. Stored voices
// are never changed.
func SeedVoices(ctx context.Context, store database.VoiceStore, voices []models.Voice) (int, error) {
	added := 0
	for _, v := range voices {
		if _, err := store.GetVoice(ctx, v.ID); err == nil {
			continue
		}
		v := v
		if err := store.UpsertVoice(ctx, &v); err != nil {
			return added, fmt.Errorf("seed voice %s: %w", v.ID, err)
		}
		added++
	}
	return added, nil
}
