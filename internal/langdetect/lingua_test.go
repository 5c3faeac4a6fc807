package langdetect

import "testing"

func TestMatchesSkipsShortSamples(t *testing.T) {
	t.Parallel()

	if _, ok := Matches("hi there", "de"); !ok {
		t.Fatalf("short sample should not be reported as a mismatch")
	}
	if _, ok := Matches("anything", ""); !ok {
		t.Fatalf("empty expectation should always match")
	}
}

func TestMatchesEnglishProse(t *testing.T) {
	t.Parallel()

	text := "The release schedule keeps publishing steady during the day and pauses overnight so readers are not flooded."
	detected, ok := Matches(text, "en")
	if !ok {
		t.Fatalf("expected english prose to match en, detected %q", detected)
	}
}
