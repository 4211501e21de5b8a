package audio

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
)

// Whisper-style speech models expect 16 kHz mono PCM.
const (
	ExtractSampleRate = 16000
	extractChannels   = 1
)

// Extractor pulls the audio track out of a video file with ffmpeg.
type Extractor struct {
	ffmpegPath string
}

func NewExtractor() (*Extractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &Extractor{ffmpegPath: ffmpegPath}, nil
}

// ExtractAudio decodes the audio track of videoPath into a 16 kHz mono
// PCM16 stream. A video without an audio track yields an empty stream.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath string) (*Stream, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", ExtractSampleRate),
		"-ac", fmt.Sprintf("%d", extractChannels),
		"-f", "wav",
		"-",
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("FFmpeg stderr output: %s", stderr.String())
		return nil, fmt.Errorf("failed to extract audio: %w", err)
	}

	stream, err := DecodeWAV(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted audio: %w", err)
	}
	return stream, nil
}
