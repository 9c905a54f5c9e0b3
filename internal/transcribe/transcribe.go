// Package transcribe converts a recorded audio clip into text.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"hormur-widget-backend/internal/config"
)

// ErrEmptyTranscript is returned when the speech-to-text service answered
// but produced no usable text.
var ErrEmptyTranscript = errors.New("transcribe: empty transcript")

// Transcriber turns a binary audio clip into text. Single attempt, no retry.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Whisper transcribes via the OpenAI audio API in a fixed target language.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
}

func NewWhisper(cfg config.Config) *Whisper {
	return &Whisper{
		client:   openai.NewClient(cfg.OpenAIAPIKey),
		model:    cfg.STTModel,
		language: cfg.STTLanguage,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyTranscript
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(audio),
		FilePath: fileNameFor(mimeType),
		Language: w.language,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// fileNameFor derives the multipart filename hint the API uses to pick a
// decoder. The widget records webm/opus, so that is the default.
func fileNameFor(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "opus") && !strings.Contains(mt, "webm"):
		return "clip.ogg"
	case strings.Contains(mt, "wav"):
		return "clip.wav"
	case strings.Contains(mt, "mp4"), strings.Contains(mt, "m4a"):
		return "clip.mp4"
	case strings.Contains(mt, "mpeg"), strings.Contains(mt, "mp3"):
		return "clip.mp3"
	default:
		return "clip.webm"
	}
}
