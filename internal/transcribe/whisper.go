package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperClient transcribes audio through the OpenAI Whisper API.
type WhisperClient struct {
	cli   *openai.Client
	model string
}

func NewWhisperClient(apiKey, model string) *WhisperClient {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperClient{
		cli:   openai.NewClient(apiKey),
		model: model,
	}
}

func (w *WhisperClient) Transcribe(ctx context.Context, audio []byte, contentType string) (*Result, error) {
	filename := "audio.wav"
	if contentType == "audio/mpeg" {
		filename = "audio.mp3"
	}

	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("transcription failed: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := &Result{
		Text:     resp.Text,
		Language: resp.Language,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
			// Whisper reports an average token log-probability; fold it
			// into a 0-1 confidence like the rest of the pipeline uses.
			Confidence:       math.Exp(seg.AvgLogprob),
			NoSpeechProb:     seg.NoSpeechProb,
			CompressionRatio: seg.CompressionRatio,
		})
	}
	return result, nil
}
