package transcript

import (
	"strings"
	"testing"
)

func TestFindOverlap_GenuineOverlap(t *testing.T) {
	text1 := "the quick brown fox jumps over the lazy dog"
	text2 := "the lazy dog sleeps in the sun"

	pos, found := FindOverlap(text1, text2, 0.8)
	if !found {
		t.Fatal("Expected overlap to be found")
	}
	// "the lazy dog" starts at word index 6 of text1.
	if pos != 6 {
		t.Errorf("Expected overlap at word 6, got %d", pos)
	}
}

func TestFindOverlap_NoOverlap(t *testing.T) {
	if _, found := FindOverlap("completely unrelated sentence here", "something else entirely different now", 0.8); found {
		t.Error("Expected no overlap for unrelated texts")
	}
}

func TestFindOverlap_TooShort(t *testing.T) {
	if _, found := FindOverlap("one two", "one two", 0.8); found {
		t.Error("Expected no overlap for texts under three words")
	}
}

func TestFindOverlap_CaseInsensitive(t *testing.T) {
	pos, found := FindOverlap("we walked The Lazy Dog home", "the lazy dog home again", 0.8)
	if !found {
		t.Fatal("Expected case-insensitive overlap")
	}
	if pos != 2 {
		t.Errorf("Expected overlap at word 2, got %d", pos)
	}
}

func TestFindOverlap_ShortMatchRejected(t *testing.T) {
	// Only two shared words at the boundary: below the minimum.
	if _, found := FindOverlap("today we discussed lazy dog", "lazy dog but then something new happened", 0.8); found {
		t.Error("Expected two-word boundary match to be rejected")
	}
}

func TestMerge_BoundaryNotDuplicated(t *testing.T) {
	merged := Merge([]Fragment{
		{Text: "the meeting starts at nine in the morning", Confidence: 0.9},
		{Text: "in the morning we review the roadmap", Confidence: 0.9},
	})

	if got := strings.Count(merged, "in the morning"); got != 1 {
		t.Errorf("Expected boundary phrase once, got %d in %q", got, merged)
	}
	if !strings.Contains(merged, "we review the roadmap") {
		t.Errorf("Expected tail of second fragment in %q", merged)
	}
	if !strings.HasPrefix(merged, "the meeting starts at nine") {
		t.Errorf("Expected head of first fragment in %q", merged)
	}
}

func TestMerge_NoOverlapConcatenates(t *testing.T) {
	merged := Merge([]Fragment{
		{Text: "first topic was budget planning", Confidence: 0.8},
		{Text: "second topic covered vacation scheduling", Confidence: 0.8},
	})

	want := "first topic was budget planning second topic covered vacation scheduling"
	if merged != want {
		t.Errorf("Expected plain concatenation %q, got %q", want, merged)
	}
}

func TestMerge_HigherConfidenceWinsOverlap(t *testing.T) {
	// Both fragments render the overlap region; the second has higher
	// confidence and extra words, so its rendering must survive.
	merged := Merge([]Fragment{
		{Text: "we will ship the new release friday", Confidence: 0.4},
		{Text: "the new release friday after final review", Confidence: 0.9},
	})

	if strings.Count(merged, "the new release friday") != 1 {
		t.Errorf("Expected overlap once, got %q", merged)
	}
	if !strings.Contains(merged, "after final review") {
		t.Errorf("Expected higher-confidence continuation in %q", merged)
	}
}

func TestMerge_SingleFragment(t *testing.T) {
	if got := Merge([]Fragment{{Text: "  just   one  fragment ", Confidence: 1}}); got != "just one fragment" {
		t.Errorf("Expected normalized single fragment, got %q", got)
	}
}

func TestMerge_Empty(t *testing.T) {
	if got := Merge(nil); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
}

func TestMerge_ThreeChunks(t *testing.T) {
	merged := Merge([]Fragment{
		{Text: "alpha beta gamma delta epsilon zeta", Confidence: 0.9},
		{Text: "delta epsilon zeta eta theta iota", Confidence: 0.9},
		{Text: "eta theta iota kappa lambda mu", Confidence: 0.9},
	})

	want := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"
	if merged != want {
		t.Errorf("Expected %q, got %q", want, merged)
	}
}
