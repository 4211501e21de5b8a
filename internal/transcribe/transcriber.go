// Package transcribe defines the speech-recognition service boundary.
// The engine itself is external; implementations wrap either the local
// speech daemon or the OpenAI Whisper API.
package transcribe

import (
	"context"
	"errors"
)

// Service failure kinds. Callers treat them differently: an unavailable
// service means remaining chunks should be skipped for the job, a
// timeout is a recoverable per-chunk failure.
var (
	ErrUnavailable = errors.New("transcription service unavailable")
	ErrTimeout     = errors.New("transcription request timed out")
)

// Segment is one time-bounded piece of a transcription result.
type Segment struct {
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Speaker          string  `json:"speaker,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	NoSpeechProb     float64 `json:"no_speech_prob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
}

// Result is a full transcription of one audio payload.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcriber converts raw audio bytes into text. Implementations are
// selected at construction time, not by runtime feature detection.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*Result, error)
}
