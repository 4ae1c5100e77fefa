package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"

	"github.com/strawberry/sitebuilder-go/internal/util"
)

// Synthesizer turns a prompt into an audio file and returns its public URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// OpenAISpeech writes text-to-speech mp3 files into dir, served under urlPrefix.
type OpenAISpeech struct {
	client    *openai.Client
	dir       string
	urlPrefix string
}

func NewOpenAISpeech(apiKey, baseURL, dir, urlPrefix string) *OpenAISpeech {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAISpeech{client: openai.NewClientWithConfig(cfg), dir: dir, urlPrefix: urlPrefix}
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	audio, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Voice: openai.VoiceAlloy,
		Input: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("create speech: %w", err)
	}
	defer audio.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	name := util.RandomString(10, util.LowerAlnum) + ".mp3"
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return s.urlPrefix + "/" + name, nil
}
