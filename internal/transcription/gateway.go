// Package transcription turns assembled audio artifacts into text.
package transcription

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FailurePlaceholder is stored as the transcription when the provider fails.
const FailurePlaceholder = "Transcription failed. Please try again."

// Gateway transcribes an artifact stored under key.
type Gateway interface {
	// Name is the provider tag persisted with the recording.
	Name() string
	Transcribe(ctx context.Context, key string) (string, error)
}

// Opener reads artifacts from blob storage.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Outcome tells a real transcription apart from a masked failure.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// Result is the tagged outcome of a transcription attempt. Text is never empty.
type Result struct {
	Text     string
	Outcome  Outcome
	Provider string
	Cause    error // set when Outcome is OutcomeDegraded
}

// Degraded reports whether the provider failed.
func (r Result) Degraded() bool { return r.Outcome == OutcomeDegraded }

// Run calls gw and never fails: errors, empty text and panics all yield a degraded result.
func Run(ctx context.Context, gw Gateway, key string, logger *zap.Logger) (res Result) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := gw.Name()
	degrade := func(cause error) Result {
		logger.Warn("transcription degraded", zap.String("provider", provider), zap.String("key", key), zap.Error(cause))
		return Result{Text: FailurePlaceholder, Outcome: OutcomeDegraded, Provider: provider, Cause: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			res = degrade(fmt.Errorf("provider panic: %v", r))
		}
	}()

	text, err := gw.Transcribe(ctx, key)
	if err != nil {
		return degrade(err)
	}
	if text == "" {
		return degrade(fmt.Errorf("provider %s returned empty text", provider))
	}
	return Result{Text: text, Outcome: OutcomeOK, Provider: provider}
}
