package transcription

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the Whisper provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, e.g. an OpenAI-compatible proxy
	Model   string
	Timeout time.Duration // 0 = none
}

// OpenAI transcribes through the OpenAI audio transcription endpoint.
type OpenAI struct {
	client  *openai.Client
	blobs   Opener
	model   string
	timeout time.Duration
}

// NewOpenAI creates a Whisper gateway reading artifacts from blobs.
func NewOpenAI(cfg OpenAIConfig, blobs Opener) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		blobs:   blobs,
		model:   model,
		timeout: cfg.Timeout,
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Transcribe streams the artifact to the provider.
func (o *OpenAI) Transcribe(ctx context.Context, key string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	rc, err := o.blobs.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close()

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: path.Base(key), // multipart file name; the provider infers the format from it
		Reader:   rc,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
