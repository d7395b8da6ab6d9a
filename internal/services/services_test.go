package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	oaoption "github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoquiResolve(t *testing.T) {
	s := NewCoquiSynthesizer("", zerolog.Nop())
	for _, ok := range []string{"tts_models/en/ljspeech/vits", "tts_models/fr/css10/vits"} {
		got, err := s.Resolve(ok)
		require.NoError(t, err, ok)
		assert.Equal(t, ok, got)
	}
	for _, bad := range []string{"", "vits", "openai/tts-1/alloy", "tts_models/en//vits", "tts_models/en/ljspeech"} {
		_, err := s.Resolve(bad)
		assert.Error(t, err, bad)
	}
}

func TestOpenAIResolve(t *testing.T) {
	s := NewOpenAISynthesizer("key", 1, zerolog.Nop())
	for _, good := range []string{"openai/tts-1/alloy", "openai/tts-1-hd/fable", "openai/tts-1/onyx", "openai/gpt-4o-mini-tts/nova"} {
		model, err := s.Resolve(good)
		assert.NoError(t, err, good)
		assert.Equal(t, good, model)
	}
	for _, bad := range []string{"openai/tts-1/robot", "openai/alloy", "tts_models/en/ljspeech/vits", "openai//alloy"} {
		_, err := s.Resolve(bad)
		assert.Error(t, err, bad)
	}
}

func TestOpenAISynthesizeWritesWAV(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)

		sample := int16(-100)
		pcm := make([]byte, 2*480)
		for i := 0; i < 480; i++ {
			binary.LittleEndian.PutUint16(pcm[2*i:], uint16(sample))
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	s := NewOpenAISynthesizer("key", 1.25, zerolog.Nop(), oaoption.WithBaseURL(srv.URL), oaoption.WithMaxRetries(0))
	out := filepath.Join(t.TempDir(), "page.wav")
	require.NoError(t, s.Synthesize(context.Background(), "openai/tts-1/nova", "Hello.", out))

	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "nova", body["voice"])
	assert.Equal(t, "pcm", body["response_format"])
	assert.Equal(t, 1.25, body["speed"])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(openAIPCMRate), dec.SampleRate)
	require.Len(t, buf.Data, 480)
	assert.Equal(t, -100, buf.Data[0])
}

func TestSummarizer(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		prompts = append(prompts, req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  short  "}}]}`)
	}))
	defer srv.Close()

	s := NewOpenAISummarizer("key", "gpt-test", oaoption.WithBaseURL(srv.URL), oaoption.WithMaxRetries(0))
	ctx := context.Background()

	summary, err := s.Summarize(ctx, "long text")
	require.NoError(t, err)
	assert.Equal(t, "short", summary)

	_, err = s.Keywords(ctx, "long text")
	require.NoError(t, err)
	assert.Equal(t, []string{summaryPrompt + "long text", keywordsPrompt + "long text"}, prompts)
}

func TestRectifyPrivateKey(t *testing.T) {
	out, err := RectifyPrivateKey([]byte(`{"type":"service_account","private_key":"-----BEGIN-----\\nabc\\n-----END-----"}`))
	require.NoError(t, err)

	var creds map[string]string
	require.NoError(t, json.Unmarshal(out, &creds))
	assert.Equal(t, "-----BEGIN-----\nabc\n-----END-----", creds["private_key"])

	_, err = RectifyPrivateKey([]byte("not json"))
	assert.Error(t, err)
}
