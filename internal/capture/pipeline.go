package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/kdimtricp/timelens/internal/audio"
	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/models"
	"github.com/kdimtricp/timelens/internal/store"
	"github.com/kdimtricp/timelens/internal/transcribe"
	"github.com/kdimtricp/timelens/internal/transcript"
)

// Config tunes one batch capture run.
type Config struct {
	FrameIntervalSeconds float64
	ChunkSeconds         float64
	OverlapSeconds       float64
	ChunkTimeout         time.Duration
	Language             string
	Model                string
}

func DefaultConfig() Config {
	return Config{
		FrameIntervalSeconds: 5,
		ChunkSeconds:         300,
		OverlapSeconds:       2,
		ChunkTimeout:         2 * time.Minute,
	}
}

// JobResult carries the outcome of one processed file, including the
// partial counts of a failed run.
type JobResult struct {
	SourceID              string  `json:"source_id"`
	Filename              string  `json:"filename"`
	DurationSeconds       float64 `json:"duration_seconds"`
	FramesObserved        int     `json:"frames_observed"`
	FramesStored          int     `json:"frames_stored"`
	FramesDropped         int     `json:"frames_dropped"`
	TranscriptionsCreated int     `json:"transcriptions_created"`
	ChunksTimedOut        int     `json:"chunks_timed_out"`
	TranscriberOffline    bool    `json:"transcriber_offline"`
	MergedTranscript      string  `json:"merged_transcript,omitempty"`
}

// Pipeline runs the full batch flow for one video file: probe, frame
// sampling with deduplication, audio chunking with transcription, and
// timeline writes.
type Pipeline struct {
	config         Config
	extractor      *FrameExtractor
	audioExtractor *audio.Extractor
	dedup          *dedup.Deduplicator
	transcriber    transcribe.Transcriber
	sources        *store.SourceRepo
	frames         *store.FrameRepo
	transcriptions *store.TranscriptionRepo
}

func NewPipeline(
	config Config,
	extractor *FrameExtractor,
	audioExtractor *audio.Extractor,
	dedup *dedup.Deduplicator,
	transcriber transcribe.Transcriber,
	sources *store.SourceRepo,
	frames *store.FrameRepo,
	transcriptions *store.TranscriptionRepo,
) *Pipeline {
	if config.FrameIntervalSeconds <= 0 {
		config.FrameIntervalSeconds = DefaultConfig().FrameIntervalSeconds
	}
	if config.ChunkSeconds <= 0 {
		config.ChunkSeconds = DefaultConfig().ChunkSeconds
	}
	if config.ChunkTimeout <= 0 {
		config.ChunkTimeout = DefaultConfig().ChunkTimeout
	}
	return &Pipeline{
		config:         config,
		extractor:      extractor,
		audioExtractor: audioExtractor,
		dedup:          dedup,
		transcriber:    transcriber,
		sources:        sources,
		frames:         frames,
		transcriptions: transcriptions,
	}
}

// ProcessVideo processes one recorded file end to end. The filename is
// validated before anything is written; a media read failure mid-run
// returns the partial result alongside the error, with the source left
// half-open.
func (p *Pipeline) ProcessVideo(ctx context.Context, videoPath string) (*JobResult, error) {
	filename := filepath.Base(videoPath)

	start, err := ParseVideoTimestamp(filename)
	if err != nil {
		return nil, err
	}

	info, err := p.extractor.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	end := start.Add(time.Duration(info.DurationSeconds * float64(time.Second)))

	source := models.NewSource(models.SourceVideo, filename, start, info.Metadata())
	if err := p.sources.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	log.Printf("Created source %s for %s (%.1fs)", source.ID, filename, info.DurationSeconds)

	result := &JobResult{
		SourceID:        source.ID,
		Filename:        filename,
		DurationSeconds: info.DurationSeconds,
	}

	if err := p.processFrames(ctx, videoPath, source.ID, start, result); err != nil {
		return result, fmt.Errorf("failed to read media: %w", err)
	}
	log.Printf("Frame pass complete: %d observed, %d unique, %d dropped",
		result.FramesObserved, result.FramesStored, result.FramesDropped)

	if err := p.processAudio(ctx, videoPath, source.ID, start, result); err != nil {
		// Audio failures never undo the frame results.
		log.Printf("Audio processing failed for %s: %v", filename, err)
	}

	if err := p.sources.UpdateEnd(ctx, source.ID, end); err != nil {
		return result, fmt.Errorf("failed to close source: %w", err)
	}
	return result, nil
}

func (p *Pipeline) processFrames(ctx context.Context, videoPath, sourceID string, start time.Time, result *JobResult) error {
	return p.extractor.Frames(ctx, videoPath, p.config.FrameIntervalSeconds, func(offsetSeconds float64, jpeg []byte) error {
		result.FramesObserved++
		timestamp := start.Add(time.Duration(offsetSeconds * float64(time.Second)))

		shouldStore, hash, similarity, err := p.dedup.Evaluate(sourceID, jpeg)
		if err != nil {
			// Fingerprinting failed on this one frame; drop it and
			// keep the stream going.
			log.Printf("Dropping frame at %.1fs: %v", offsetSeconds, err)
			result.FramesDropped++
			return nil
		}

		obs := store.Observation{
			SourceID:       sourceID,
			Timestamp:      timestamp,
			PerceptualHash: hash,
			Similarity:     similarity,
			ShouldStore:    shouldStore,
		}
		if shouldStore {
			obs.ImageData = jpeg
		}
		if _, err := p.frames.RecordObservation(ctx, obs); err != nil {
			return err
		}
		if shouldStore {
			result.FramesStored++
		}
		return nil
	})
}

func (p *Pipeline) processAudio(ctx context.Context, videoPath, sourceID string, start time.Time, result *JobResult) error {
	stream, err := p.audioExtractor.ExtractAudio(ctx, videoPath)
	if err != nil {
		return err
	}
	if stream.TotalFrames() == 0 {
		log.Printf("No audio track in %s", videoPath)
		return nil
	}

	var fragments []transcript.Fragment
	var loopErr error

	audio.Segment(stream, p.config.ChunkSeconds, p.config.OverlapSeconds, func(chunk audio.Chunk) bool {
		text, confidence, err := p.transcribeChunk(ctx, chunk)
		switch {
		case errors.Is(err, transcribe.ErrUnavailable):
			// Service down: skip all remaining chunks, keep what we have.
			log.Printf("Transcription service unavailable, skipping remaining chunks")
			result.TranscriberOffline = true
			return false
		case errors.Is(err, transcribe.ErrTimeout):
			log.Printf("Transcription timed out for chunk %d, skipping", chunk.Index)
			result.ChunksTimedOut++
			return true
		case err != nil:
			log.Printf("Transcription failed for chunk %d: %v", chunk.Index, err)
			return true
		}
		if text == "" {
			log.Printf("Chunk %d had no text content", chunk.Index)
			return true
		}

		tr := p.buildTranscription(sourceID, start, chunk, text, confidence)
		if err := p.transcriptions.Create(ctx, tr); err != nil {
			loopErr = err
			return false
		}
		if err := p.transcriptions.LinkTimeline(ctx, tr); err != nil {
			loopErr = err
			return false
		}
		result.TranscriptionsCreated++

		if text[0] != '[' {
			fragments = append(fragments, transcript.Fragment{Text: text, Confidence: confidence})
		}
		return true
	})
	if loopErr != nil {
		return loopErr
	}

	result.MergedTranscript = transcript.Merge(fragments)
	return nil
}

// transcribeChunk sends one chunk to the transcription service under a
// bounded timeout and reduces the result to stored text and confidence.
// Non-speech chunks come back as a bracketed marker.
func (p *Pipeline) transcribeChunk(ctx context.Context, chunk audio.Chunk) (string, float64, error) {
	var wav bytes.Buffer
	if err := audio.EncodeWAV(&wav, chunk.Stream()); err != nil {
		return "", 0, err
	}

	chunkCtx, cancel := context.WithTimeout(ctx, p.config.ChunkTimeout)
	defer cancel()

	result, err := p.transcriber.Transcribe(chunkCtx, wav.Bytes(), "audio/wav")
	if err != nil {
		return "", 0, err
	}

	if isNonSpeech, marker := transcript.ClassifyNonSpeech(result); isNonSpeech {
		return marker, 0, nil
	}

	segments := transcript.DeduplicateSegments(result.Segments)
	confidence := transcript.Confidence(segments)
	return strings.TrimSpace(result.Text), confidence, nil
}

func (p *Pipeline) buildTranscription(sourceID string, start time.Time, chunk audio.Chunk, text string, confidence float64) *models.Transcription {
	tr := &models.Transcription{
		SourceID:       sourceID,
		StartTimestamp: start.Add(seconds(chunk.StartSeconds)),
		EndTimestamp:   start.Add(seconds(chunk.EndSeconds)),
		Text:           text,
		Confidence:     confidence,
		Language:       p.config.Language,
		Model:          p.config.Model,
		HasOverlap:     chunk.HasOverlapBefore || chunk.HasOverlapAfter,
	}
	if chunk.HasOverlapBefore {
		t := start.Add(seconds(chunk.OverlapStartSeconds))
		tr.OverlapStart = &t
	}
	if chunk.HasOverlapAfter {
		t := start.Add(seconds(chunk.OverlapEndSeconds))
		tr.OverlapEnd = &t
	}
	if text != "" && text[0] == '[' {
		tr.Metadata = map[string]any{"is_non_speech": true, "audio_type": text}
	}
	return tr
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
