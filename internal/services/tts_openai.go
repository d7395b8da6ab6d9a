package services

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/openai/openai-go"
	oaoption "github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

const (
	openAIVoicePrefix = "openai/"
	// The speech endpoint's pcm format is raw 24kHz 16-bit signed little-endian mono.
	openAIPCMRate = 24000
)

var openAIVoices = map[string]openai.AudioSpeechNewParamsVoice{
	"alloy":   openai.AudioSpeechNewParamsVoiceAlloy,
	"ash":     openai.AudioSpeechNewParamsVoiceAsh,
	"coral":   openai.AudioSpeechNewParamsVoiceCoral,
	"echo":    openai.AudioSpeechNewParamsVoiceEcho,
	"fable":   openai.AudioSpeechNewParamsVoice("fable"),
	"onyx":    openai.AudioSpeechNewParamsVoice("onyx"),
	"nova":    openai.AudioSpeechNewParamsVoice("nova"),
	"sage":    openai.AudioSpeechNewParamsVoiceSage,
	"shimmer": openai.AudioSpeechNewParamsVoiceShimmer,
}

// OpenAISynthesizer renders speech with the OpenAI audio API.
type OpenAISynthesizer struct {
	client openai.Client
	speed  float64
	log    zerolog.Logger
}

func NewOpenAISynthesizer(apiKey string, speed float64, log zerolog.Logger, opts ...oaoption.RequestOption) *OpenAISynthesizer {
	opts = append([]oaoption.RequestOption{oaoption.WithAPIKey(apiKey)}, opts...)
	if speed <= 0 {
		speed = 1.0
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		speed:  speed,
		log:    log.With().Str("component", "openai-tts").Logger(),
	}
}

// Resolve accepts "openai/<model>/<voice>", e.g. "openai/tts-1/alloy".
func (s *OpenAISynthesizer) Resolve(voice string) (string, error) {
	if _, _, err := splitOpenAIVoice(voice); err != nil {
		return "", err
	}
	return voice, nil
}

func splitOpenAIVoice(name string) (string, openai.AudioSpeechNewParamsVoice, error) {
	parts := strings.Split(strings.TrimPrefix(name, openAIVoicePrefix), "/")
	if !strings.HasPrefix(name, openAIVoicePrefix) || len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("%q is not an OpenAI voice name", name)
	}
	voice, ok := openAIVoices[parts[1]]
	if !ok {
		return "", "", fmt.Errorf("unknown OpenAI voice %q", parts[1])
	}
	return parts[0], voice, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, model, text, path string) error {
	modelName, voice, err := splitOpenAIVoice(model)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(modelName),
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
		Speed:          openai.Float(s.speed),
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read speech: %w", err)
	}
	if err := writePCMWAV(path, pcm); err != nil {
		return err
	}
	s.log.Debug().
		Str("model", modelName).
		Int("bytes", len(pcm)).
		Dur("elapsed", time.Since(start)).
		Msg("page synthesized")
	return nil
}

// writePCMWAV wraps raw 16-bit little-endian mono samples in a WAV container.
func writePCMWAV(path string, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	enc := wav.NewEncoder(f, openAIPCMRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: openAIPCMRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
