package transcript

import (
	"testing"

	"github.com/kdimtricp/timelens/internal/transcribe"
)

func TestClassifyNonSpeech_CleanSpeech(t *testing.T) {
	result := &transcribe.Result{
		Text: "welcome everyone to the weekly status meeting",
		Segments: []transcribe.Segment{
			{Text: "welcome everyone to", Confidence: 0.9, NoSpeechProb: 0.1, CompressionRatio: 1.2},
			{Text: "the weekly status meeting", Confidence: 0.85, NoSpeechProb: 0.05, CompressionRatio: 1.3},
		},
	}

	if isNonSpeech, marker := ClassifyNonSpeech(result); isNonSpeech {
		t.Errorf("Expected clean speech to pass, got marker %s", marker)
	}
}

func TestClassifyNonSpeech_HighNoSpeechRatio(t *testing.T) {
	result := &transcribe.Result{
		Text: "mmm hmm",
		Segments: []transcribe.Segment{
			{Text: "mmm", NoSpeechProb: 0.9, Confidence: 0.8},
			{Text: "hmm", NoSpeechProb: 0.8, Confidence: 0.8},
			{Text: "ok then", NoSpeechProb: 0.1, Confidence: 0.8},
		},
	}

	isNonSpeech, marker := ClassifyNonSpeech(result)
	if !isNonSpeech {
		t.Fatal("Expected chunk with dominant no-speech segments to classify as non-speech")
	}
	if marker == "" {
		t.Error("Expected a marker")
	}
}

func TestClassifyNonSpeech_EmptySegmentsAreSilence(t *testing.T) {
	result := &transcribe.Result{
		Text: "",
		Segments: []transcribe.Segment{
			{Text: "", Confidence: 0.8},
			{Text: "  ", Confidence: 0.8},
			{Text: "", Confidence: 0.8},
			{Text: "", Confidence: 0.8},
			{Text: "", Confidence: 0.8},
			{Text: "ok", Confidence: 0.8},
		},
	}

	isNonSpeech, marker := ClassifyNonSpeech(result)
	if !isNonSpeech {
		t.Fatal("Expected mostly empty segments to classify as non-speech")
	}
	if marker != MarkerSilence {
		t.Errorf("Expected %s, got %s", MarkerSilence, marker)
	}
}

func TestClassifyNonSpeech_MusicKeyword(t *testing.T) {
	result := &transcribe.Result{
		Text: "♪ music playing ♪",
		Segments: []transcribe.Segment{
			{Text: "♪", NoSpeechProb: 0.9},
			{Text: "music playing", NoSpeechProb: 0.9},
		},
	}

	isNonSpeech, marker := ClassifyNonSpeech(result)
	if !isNonSpeech || marker != MarkerMusic {
		t.Errorf("Expected %s, got isNonSpeech=%v marker=%s", MarkerMusic, isNonSpeech, marker)
	}
}

func TestClassifyNonSpeech_RepetitiveCompression(t *testing.T) {
	segs := make([]transcribe.Segment, 6)
	for i := range segs {
		segs[i] = transcribe.Segment{Text: "beat beat beat", Confidence: 0.8, CompressionRatio: 3.1}
	}

	isNonSpeech, marker := ClassifyNonSpeech(&transcribe.Result{Text: "beat beat beat", Segments: segs})
	if !isNonSpeech {
		t.Fatal("Expected highly compressed segments to classify as non-speech")
	}
	if marker != MarkerMusic {
		t.Errorf("Expected %s for repetitive compression, got %s", MarkerMusic, marker)
	}
}

func TestClassifyNonSpeech_InlineServiceMarkers(t *testing.T) {
	cases := []struct {
		text   string
		marker string
	}{
		{"[applause] [applause] [applause]", MarkerApplause},
		{"[laughter] and more [laughter]", MarkerLaughter},
		{"just [static] on the line", MarkerBackground},
	}

	for _, tc := range cases {
		result := &transcribe.Result{
			Text:     tc.text,
			Segments: []transcribe.Segment{{Text: tc.text, Confidence: 0.8}},
		}
		isNonSpeech, marker := ClassifyNonSpeech(result)
		if !isNonSpeech || marker != tc.marker {
			t.Errorf("%q: expected %s, got isNonSpeech=%v marker=%s", tc.text, tc.marker, isNonSpeech, marker)
		}
	}
}

func TestClassifyNonSpeech_RepetitiveShortWords(t *testing.T) {
	result := &transcribe.Result{
		Text:     "1.5% 1.5% 1.5% 1.5% 1.5% 1.5%",
		Segments: []transcribe.Segment{{Text: "1.5% 1.5% 1.5% 1.5% 1.5% 1.5%", Confidence: 0.8}},
	}

	isNonSpeech, marker := ClassifyNonSpeech(result)
	if !isNonSpeech || marker != MarkerRepetitive {
		t.Errorf("Expected %s, got isNonSpeech=%v marker=%s", MarkerRepetitive, isNonSpeech, marker)
	}
}

func TestDeduplicateSegments_IdenticalOverlap(t *testing.T) {
	segs := []transcribe.Segment{
		{Start: 0, End: 4, Text: "see you tomorrow"},
		{Start: 3, End: 6, Text: "See you tomorrow"},
	}

	result := DeduplicateSegments(segs)
	if len(result) != 1 {
		t.Fatalf("Expected 1 segment after dedup, got %d", len(result))
	}
	if result[0].End != 6 {
		t.Errorf("Expected end extended to 6, got %g", result[0].End)
	}
}

func TestDeduplicateSegments_SubstantialOverlapLongerWins(t *testing.T) {
	segs := []transcribe.Segment{
		{Start: 0, End: 5, Text: "short take"},
		{Start: 1, End: 5.5, Text: "a much longer richer rendering of this"},
	}

	result := DeduplicateSegments(segs)
	if len(result) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(result))
	}
	if result[0].Text != "a much longer richer rendering of this" {
		t.Errorf("Expected longer rendering to win, got %q", result[0].Text)
	}
}

func TestDeduplicateSegments_DisjointKept(t *testing.T) {
	segs := []transcribe.Segment{
		{Start: 5, End: 8, Text: "second"},
		{Start: 0, End: 4, Text: "first"},
	}

	result := DeduplicateSegments(segs)
	if len(result) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(result))
	}
	if result[0].Text != "first" || result[1].Text != "second" {
		t.Errorf("Expected chronological order, got %+v", result)
	}
}

func TestDeduplicateSegments_MarginalOverlapKeepsBoth(t *testing.T) {
	segs := []transcribe.Segment{
		{Start: 0, End: 4, Text: "first utterance"},
		{Start: 3.8, End: 7, Text: "second utterance"},
	}

	if result := DeduplicateSegments(segs); len(result) != 2 {
		t.Errorf("Expected marginal overlap to keep both segments, got %d", len(result))
	}
}

func TestConfidence(t *testing.T) {
	segs := []transcribe.Segment{
		{Text: "four words in here", Confidence: 1.0},
		{Text: "two words", Confidence: 0.5},
	}

	// (1.0*4 + 0.5*2) / 6.
	got := Confidence(segs)
	want := 5.0 / 6.0
	if got < want-0.001 || got > want+0.001 {
		t.Errorf("Expected confidence %f, got %f", want, got)
	}

	if Confidence(nil) != 0 {
		t.Error("Expected 0 confidence for no segments")
	}

	// Unreported confidence defaults to 0.5.
	if got := Confidence([]transcribe.Segment{{Text: "hello there"}}); got != 0.5 {
		t.Errorf("Expected default confidence 0.5, got %f", got)
	}
}
