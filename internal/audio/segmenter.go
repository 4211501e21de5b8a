package audio

// Chunk is one transcription unit cut from a stream. Overlap bounds are
// absolute seconds within the stream; the transcript merger uses them to
// reconcile text duplicated across chunk boundaries.
type Chunk struct {
	Index            int
	StartSeconds     float64
	EndSeconds       float64
	Samples          []byte
	SampleRate       int
	Channels         int
	BitsPerSample    int
	HasOverlapBefore bool
	HasOverlapAfter  bool
	// OverlapStartSeconds is where this chunk's shared region with its
	// predecessor begins; OverlapEndSeconds is where the shared region
	// with its successor begins. Valid only when the matching flag is set.
	OverlapStartSeconds float64
	OverlapEndSeconds   float64
}

// Stream returns the chunk as a standalone audio stream.
func (c *Chunk) Stream() *Stream {
	return &Stream{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		BitsPerSample: c.BitsPerSample,
		Samples:       c.Samples,
	}
}

// Segment cuts the stream into fixed-duration chunks covering
// [0, totalDuration), each overlapping its neighbours by overlapSeconds.
// Chunks are produced lazily in order via yield; returning false stops
// the iteration. The final chunk is truncated to the stream length. If
// overlap >= duration the step falls back to the full chunk duration so
// segmentation always terminates.
func Segment(s *Stream, chunkSeconds, overlapSeconds float64, yield func(Chunk) bool) {
	bpf := s.bytesPerFrame()
	totalFrames := s.TotalFrames()
	if bpf == 0 || totalFrames == 0 || chunkSeconds <= 0 {
		return
	}

	chunkFrames := int(float64(s.SampleRate) * chunkSeconds)
	overlapFrames := int(float64(s.SampleRate) * overlapSeconds)

	stepFrames := chunkFrames - overlapFrames
	if stepFrames <= 0 {
		stepFrames = chunkFrames
		overlapFrames = 0
	}

	startFrame := 0
	index := 0
	for startFrame < totalFrames {
		endFrame := startFrame + chunkFrames
		if endFrame > totalFrames {
			endFrame = totalFrames
		}

		chunk := Chunk{
			Index:         index,
			StartSeconds:  float64(startFrame) / float64(s.SampleRate),
			EndSeconds:    float64(endFrame) / float64(s.SampleRate),
			Samples:       s.Samples[startFrame*bpf : endFrame*bpf],
			SampleRate:    s.SampleRate,
			Channels:      s.Channels,
			BitsPerSample: s.BitsPerSample,
		}

		if index > 0 && overlapFrames > 0 {
			chunk.HasOverlapBefore = true
			chunk.OverlapStartSeconds = chunk.StartSeconds
		}
		if endFrame < totalFrames && overlapFrames > 0 {
			chunk.HasOverlapAfter = true
			chunk.OverlapEndSeconds = float64(endFrame-overlapFrames) / float64(s.SampleRate)
		}

		if !yield(chunk) {
			return
		}

		startFrame += stepFrames
		index++
	}
}

// Chunks collects all segments into a slice.
func Chunks(s *Stream, chunkSeconds, overlapSeconds float64) []Chunk {
	var chunks []Chunk
	Segment(s, chunkSeconds, overlapSeconds, func(c Chunk) bool {
		chunks = append(chunks, c)
		return true
	})
	return chunks
}
