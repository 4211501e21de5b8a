// Package transcript reconciles text transcribed from overlapping audio
// chunks into a single deduplicated stream.
package transcript

import "strings"

// DefaultOverlapRatio is the minimum share of a candidate overlap window
// that must match word for word before two fragments are merged.
const DefaultOverlapRatio = 0.8

const minOverlapWords = 3

// Fragment is one chronologically ordered piece of transcribed text with
// the confidence the speech service reported for it.
type Fragment struct {
	Text       string
	Confidence float64
}

// FindOverlap looks for the longest word-aligned prefix of text2 that
// matches a suffix region of text1. It returns the word index in text1
// where the overlap starts. A match needs at least three words and must
// cover at least minRatio of the candidate overlap window; anything
// weaker is treated as no overlap so unrelated fragments are never
// falsely merged.
func FindOverlap(text1, text2 string, minRatio float64) (int, bool) {
	words1 := strings.Fields(text1)
	words2 := strings.Fields(text2)

	if len(words1) < minOverlapWords || len(words2) < minOverlapWords {
		return 0, false
	}

	bestPos := -1
	bestLen := 0

	for start := 0; start <= len(words1)-minOverlapWords; start++ {
		matchLen := 0
		limit := len(words1) - start
		if len(words2) < limit {
			limit = len(words2)
		}
		for i := 0; i < limit; i++ {
			if !strings.EqualFold(words1[start+i], words2[i]) {
				break
			}
			matchLen++
		}

		if matchLen >= minOverlapWords && matchLen > bestLen {
			window := len(words1) - start
			if len(words2) < window {
				window = len(words2)
			}
			if float64(matchLen)/float64(window) >= minRatio {
				bestLen = matchLen
				bestPos = start
			}
		}
	}

	if bestPos < 0 {
		return 0, false
	}
	return bestPos, true
}

// Merge stitches chronologically ordered fragments into one text,
// removing boundary duplication introduced by overlapping audio chunks.
// Where two renderings of the overlap disagree, the higher-confidence
// fragment wins. Fragments with no detectable overlap are concatenated
// unchanged.
func Merge(fragments []Fragment) string {
	return MergeWithRatio(fragments, DefaultOverlapRatio)
}

func MergeWithRatio(fragments []Fragment, minRatio float64) string {
	if len(fragments) == 0 {
		return ""
	}
	if len(fragments) == 1 {
		return normalizeSpace(fragments[0].Text)
	}

	var parts []string
	current := fragments[0]

	for _, next := range fragments[1:] {
		overlapPos, found := FindOverlap(current.Text, next.Text, minRatio)
		if !found {
			parts = append(parts, current.Text)
			current = next
			continue
		}

		words := strings.Fields(current.Text)
		if overlapPos > 0 {
			parts = append(parts, strings.Join(words[:overlapPos], " "))
		}

		if next.Confidence > current.Confidence {
			// The later chunk's rendering of the overlap is better; it
			// already contains the overlap, so it replaces the tail.
			current = next
			continue
		}

		// Keep the overlap as the earlier chunk rendered it and append
		// whatever the later chunk adds past the shared words.
		overlapWords := words[overlapPos:]
		nextWords := strings.Fields(next.Text)
		common := 0
		for common < len(overlapWords) && common < len(nextWords) &&
			strings.EqualFold(overlapWords[common], nextWords[common]) {
			common++
		}

		merged := overlapWords
		if common > 0 && common < len(nextWords) {
			merged = append(append([]string{}, overlapWords...), nextWords[common:]...)
		} else if common == 0 {
			merged = nextWords
		}
		current = Fragment{Text: strings.Join(merged, " "), Confidence: current.Confidence}
	}

	parts = append(parts, current.Text)
	return normalizeSpace(strings.Join(parts, " "))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
