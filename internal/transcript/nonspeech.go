package transcript

import (
	"strings"

	"github.com/kdimtricp/timelens/internal/transcribe"
)

// Bracketed markers stored in place of garbage transcripts so noise
// never pollutes search results.
const (
	MarkerMusic          = "[Music]"
	MarkerApplause       = "[Applause]"
	MarkerLaughter       = "[Laughter]"
	MarkerSilence        = "[Silence]"
	MarkerBackground     = "[Background Noise]"
	MarkerRepetitive     = "[Repetitive Audio]"
	MarkerGenericNonTalk = "[Non-Speech Audio]"
)

// Per-segment indicator thresholds.
const (
	segmentNoSpeechProb  = 0.6
	segmentLowConfidence = 0.37 // roughly exp(-1) on Whisper's logprob scale
	segmentHighComprRate = 2.5
)

// Chunk-level classification thresholds.
const (
	noSpeechRatioLimit  = 0.5
	lowConfRatioLimit   = 0.6
	emptyTextRatioLimit = 0.7
)

type speechAnalysis struct {
	noSpeechRatio   float64
	lowConfRatio    float64
	emptyTextRatio  float64
	repetitiveCount int
	totalSegments   int
}

func (a speechAnalysis) isNonSpeech() bool {
	return a.noSpeechRatio > noSpeechRatioLimit ||
		a.lowConfRatio > lowConfRatioLimit ||
		a.emptyTextRatio > emptyTextRatioLimit ||
		float64(a.repetitiveCount) > float64(a.totalSegments)*0.5
}

func analyzeSegments(segments []transcribe.Segment) speechAnalysis {
	a := speechAnalysis{totalSegments: len(segments)}
	if a.totalSegments == 0 {
		return a
	}

	noSpeech, lowConf, empty := 0, 0, 0
	for _, seg := range segments {
		if seg.NoSpeechProb > segmentNoSpeechProb {
			noSpeech++
		}
		if seg.Confidence > 0 && seg.Confidence < segmentLowConfidence {
			lowConf++
		}
		if strings.TrimSpace(seg.Text) == "" {
			empty++
		}
		if seg.CompressionRatio > segmentHighComprRate {
			a.repetitiveCount++
		}
	}

	total := float64(a.totalSegments)
	a.noSpeechRatio = float64(noSpeech) / total
	a.lowConfRatio = float64(lowConf) / total
	a.emptyTextRatio = float64(empty) / total
	return a
}

// ClassifyNonSpeech inspects a transcription result and decides whether
// the chunk is non-speech audio. When it is, the returned marker should
// be stored in place of the literal transcript.
func ClassifyNonSpeech(result *transcribe.Result) (bool, string) {
	if result == nil {
		return true, MarkerSilence
	}

	text := strings.TrimSpace(result.Text)

	if len(result.Segments) > 0 {
		analysis := analyzeSegments(result.Segments)
		if analysis.isNonSpeech() {
			return true, classifyMarker(analysis, text)
		}
	} else if text == "" {
		return true, MarkerSilence
	}

	if marker := detectTextPatterns(text); marker != "" {
		return true, marker
	}
	return false, ""
}

// classifyMarker picks a marker from keywords in the discarded text and
// from which analysis ratio dominated.
func classifyMarker(analysis speechAnalysis, text string) string {
	lower := strings.ToLower(text)

	if containsAny(lower, "♪", "♫", "music", "singing", "song") {
		return MarkerMusic
	}
	if containsAny(lower, "applause", "clapping", "cheering") {
		return MarkerApplause
	}
	if containsAny(lower, "laughter", "laughing", "haha") {
		return MarkerLaughter
	}

	if analysis.emptyTextRatio > 0.8 {
		return MarkerSilence
	}
	if analysis.noSpeechRatio > 0.7 {
		return MarkerBackground
	}
	if analysis.repetitiveCount > 3 {
		return MarkerMusic
	}
	return MarkerGenericNonTalk
}

// detectTextPatterns catches non-speech markers that the speech service
// itself emits inline, plus highly repetitive nonsense.
func detectTextPatterns(text string) string {
	if text == "" {
		return MarkerSilence
	}
	lower := strings.ToLower(text)

	patterns := []struct {
		marker   string
		keywords []string
	}{
		{MarkerMusic, []string{"♪", "♫", "[music]", "(music)", "[singing]", "[instrumental]"}},
		{MarkerApplause, []string{"[applause]", "(applause)", "[clapping]", "(clapping)"}},
		{MarkerLaughter, []string{"[laughter]", "(laughter)", "[laughing]", "haha", "hehe"}},
		{MarkerBackground, []string{"[noise]", "(noise)", "[static]", "[wind]"}},
		{MarkerSilence, []string{"[silence]", "(silence)", "[pause]"}},
	}
	for _, p := range patterns {
		if containsAny(lower, p.keywords...) {
			return p.marker
		}
	}

	words := strings.Fields(lower)
	if len(words) > 3 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique)) < float64(len(words))*0.3 {
			allShort := true
			for w := range unique {
				if len(w) > 4 {
					allShort = false
					break
				}
			}
			if allShort {
				return MarkerRepetitive
			}
		}
	}

	if len(words) > 0 {
		fillers := map[string]bool{"la": true, "na": true, "da": true, "oh": true, "ah": true, "mm": true, "uh": true}
		allFiller := true
		for _, w := range words {
			if !fillers[w] {
				allFiller = false
				break
			}
		}
		if allFiller {
			return MarkerMusic
		}
	}

	return ""
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
