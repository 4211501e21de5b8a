package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// VideoInfo is the probed shape of an input file.
type VideoInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	Codec           string
}

// Metadata flattens the probe result into the source metadata map.
func (v *VideoInfo) Metadata() map[string]any {
	return map[string]any{
		"duration": v.DurationSeconds,
		"width":    v.Width,
		"height":   v.Height,
		"fps":      v.FPS,
		"codec":    v.Codec,
	}
}

// FrameExtractor shells out to ffmpeg/ffprobe for media decoding.
type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFrameExtractor() (*FrameExtractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FrameExtractor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// Probe reads duration, resolution and frame rate from the container.
func (fe *FrameExtractor) Probe(ctx context.Context, videoPath string) (*VideoInfo, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	cmd := exec.CommandContext(ctx, fe.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
		}
	}
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		if parts := strings.Split(stream.RFrameRate, "/"); len(parts) == 2 {
			num, _ := strconv.ParseFloat(parts[0], 64)
			den, _ := strconv.ParseFloat(parts[1], 64)
			if den > 0 {
				info.FPS = num / den
			}
		}
		break
	}

	if info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("invalid video duration: %f", info.DurationSeconds)
	}
	return info, nil
}

// Frames samples one JPEG every intervalSeconds through a single ffmpeg
// invocation streaming MJPEG to stdout. The splitter cuts the stream
// into images as bytes arrive; yield receives each frame with its
// offset from the start of the file and may return an error to abort.
func (fe *FrameExtractor) Frames(ctx context.Context, videoPath string, intervalSeconds float64, yield func(offsetSeconds float64, jpeg []byte) error) error {
	if intervalSeconds <= 0 {
		intervalSeconds = 1
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath,
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%g", intervalSeconds),
		"-q:v", "2",
		"-vcodec", "mjpeg",
		"-f", "image2pipe",
		"-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	abort := func(err error) error {
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}

	splitter := &FrameSplitter{}
	buf := make([]byte, 64*1024)
	index := 0

	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			splitter.Feed(buf[:n])
			for {
				frame, ok := splitter.Next()
				if !ok {
					break
				}
				if err := yield(float64(index)*intervalSeconds, frame); err != nil {
					return abort(err)
				}
				index++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return abort(fmt.Errorf("failed to read frame stream: %w", readErr))
		}
	}

	if err := cmd.Wait(); err != nil {
		log.Printf("ffmpeg stderr: %s", stderr.String())
		return fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}
	if splitter.Pending() {
		log.Printf("Discarding truncated trailing frame from %s", videoPath)
	}
	return nil
}
