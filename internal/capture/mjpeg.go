package capture

// FrameSplitter cuts an MJPEG byte stream into individual JPEG images.
// It is an incremental marker state machine: bytes are fed in arbitrary
// chunk sizes and each byte is examined once, so a start-of-image or
// end-of-image marker split across two reads is still recognized.
type FrameSplitter struct {
	frames  [][]byte
	current []byte
	inFrame bool
	prev    byte
}

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
)

// Feed consumes the next run of stream bytes. Completed frames become
// available through Next.
func (s *FrameSplitter) Feed(p []byte) {
	for _, b := range p {
		if s.inFrame {
			s.current = append(s.current, b)
			if s.prev == markerPrefix && b == markerEOI {
				s.frames = append(s.frames, s.current)
				s.current = nil
				s.inFrame = false
			}
		} else if s.prev == markerPrefix && b == markerSOI {
			s.current = append(s.current, markerPrefix, markerSOI)
			s.inFrame = true
		}
		s.prev = b
	}
}

// Next returns the oldest complete frame, or false when none is pending.
func (s *FrameSplitter) Next() ([]byte, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, true
}

// Pending reports whether the splitter holds a partially received frame.
func (s *FrameSplitter) Pending() bool {
	return s.inFrame
}
