package models

import (
	"time"

	"github.com/google/uuid"
)

// Source kinds. A source is one physical capture origin: an uploaded
// video file, a live push stream, or a user voice recording.
const (
	SourceVideo      = "video"
	SourceStream     = "stream"
	SourceVoiceNotes = "voice_notes"
)

type Source struct {
	ID             string
	Type           string
	Filename       string
	StartTimestamp time.Time
	EndTimestamp   *time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
}

func NewSource(sourceType, filename string, start time.Time, metadata map[string]any) *Source {
	return &Source{
		ID:             uuid.New().String(),
		Type:           sourceType,
		Filename:       filename,
		StartTimestamp: start,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}
}

func (s *Source) DurationSeconds() float64 {
	if s.EndTimestamp == nil {
		return 0
	}
	return s.EndTimestamp.Sub(s.StartTimestamp).Seconds()
}

// Frame is the canonical stored image for a cluster of visually
// identical observations within one source.
type Frame struct {
	ID             string
	SourceID       string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
	PerceptualHash string
	ImageData      []byte
	Metadata       map[string]any
}

// TimelineEntry binds one sampled instant to the frame and transcription
// observed at that instant. Entries are append-only.
type TimelineEntry struct {
	ID              string
	SourceID        string
	Timestamp       time.Time
	FrameID         *string
	TranscriptionID *string
	SimilarityScore float64
}

// SceneChanged reports whether this entry marks a scene change relative
// to the previously stored frame.
func (e *TimelineEntry) SceneChanged(threshold float64) bool {
	return e.SimilarityScore < threshold
}

type Transcription struct {
	ID             string
	SourceID       string
	StartTimestamp time.Time
	EndTimestamp   time.Time
	Text           string
	Confidence     float64
	Language       string
	Model          string
	HasOverlap     bool
	OverlapStart   *time.Time
	OverlapEnd     *time.Time
	// Speaker attribution is optional and may be corrected after the fact.
	SpeakerName       string
	SpeakerConfidence float64
	Metadata          map[string]any
}

func (t *Transcription) WordCount() int {
	if t.Text == "" {
		return 0
	}
	n := 0
	inWord := false
	for _, r := range t.Text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}

// Annotation types.
const (
	AnnotationUserNote         = "user_note"
	AnnotationAISummary        = "ai_summary"
	AnnotationOCROutput        = "ocr_output"
	AnnotationLLMQuery         = "llm_query"
	AnnotationSceneDescription = "scene_description"
	AnnotationActionDetected   = "action_detected"
	AnnotationCustom           = "custom"
)

func ValidAnnotationType(t string) bool {
	switch t {
	case AnnotationUserNote, AnnotationAISummary, AnnotationOCROutput,
		AnnotationLLMQuery, AnnotationSceneDescription,
		AnnotationActionDetected, AnnotationCustom:
		return true
	}
	return false
}

// Annotation is a user- or system-authored label over a time range,
// joined to the timeline purely by time overlap.
type Annotation struct {
	ID             string
	SourceID       string
	StartTimestamp time.Time
	EndTimestamp   time.Time
	Type           string
	Content        string
	Metadata       map[string]any
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *Annotation) DurationSeconds() float64 {
	return a.EndTimestamp.Sub(a.StartTimestamp).Seconds()
}
