package transcript

import (
	"sort"
	"strings"

	"github.com/kdimtricp/timelens/internal/transcribe"
)

// Overlapping windows closer than this are treated as the same utterance
// when their texts differ.
const substantialOverlapSeconds = 0.5

// DeduplicateSegments merges timestamped segments from neighbouring
// chunks. Segments whose windows overlap and whose text is identical
// (case-insensitive) collapse into one, extending the earlier segment's
// end time. If the texts differ but the windows overlap substantially,
// the longer rendering wins.
func DeduplicateSegments(segments []transcribe.Segment) []transcribe.Segment {
	if len(segments) <= 1 {
		return segments
	}

	sorted := make([]transcribe.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	result := make([]transcribe.Segment, 0, len(sorted))
	for _, seg := range sorted {
		if len(result) == 0 {
			result = append(result, seg)
			continue
		}

		last := &result[len(result)-1]
		if seg.Start >= last.End {
			result = append(result, seg)
			continue
		}

		if sameText(seg.Text, last.Text) {
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}

		if seg.Start < last.End-substantialOverlapSeconds {
			// Same utterance rendered twice; keep the richer one.
			if len(seg.Text) > len(last.Text) {
				*last = seg
			}
			continue
		}

		result = append(result, seg)
	}
	return result
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Confidence derives an overall 0-1 score from segment confidences,
// weighted by word count. Segments without a reported confidence fall
// back to 0.5.
func Confidence(segments []transcribe.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}

	var total, weight float64
	for _, seg := range segments {
		words := len(strings.Fields(seg.Text))
		if words == 0 {
			words = 1
		}
		conf := seg.Confidence
		if conf == 0 {
			conf = 0.5
		}
		total += conf * float64(words)
		weight += float64(words)
	}
	conf := total / weight
	if conf > 1 {
		conf = 1
	}
	return conf
}
