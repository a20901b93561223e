package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestSentencesSplitsAfterPeriodAndWhitespace(t *testing.T) {
	got := Sentences("Hello there. How are you.")
	want := []string{"Hello there. ", "How are you."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sentences: %q", got)
	}
}

func TestSentencesWithoutPunctuation(t *testing.T) {
	got := Sentences("no boundary here")
	if len(got) != 1 || got[0] != "no boundary here" {
		t.Fatalf("expected single sentence, got %q", got)
	}
	if got := Sentences(""); len(got) != 1 || got[0] != "" {
		t.Fatalf("expected single empty sentence, got %q", got)
	}
}

func TestSentencesKeepsWhitespaceRuns(t *testing.T) {
	text := "\n  One.\n\n  Two. Three.   "
	got := Sentences(text)
	want := []string{"\n  One.\n\n  ", "Two. ", "Three.   "}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sentences: %q", got)
	}
}

func TestSentencesIgnoresInnerPeriods(t *testing.T) {
	got := Sentences("Pi is 3.14 today.")
	if len(got) != 1 {
		t.Fatalf("expected one sentence, got %q", got)
	}
}

func TestSentencesRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"   ",
		"A. B. C.",
		"Ends with space. ",
		"Unicode\u00a0space.\u2003Next one. ",
		"..  .. x",
		"I'm here.\tTabs.\nNewlines.",
	}
	for _, text := range texts {
		got := strings.Join(Sentences(text), "")
		if got != text {
			t.Fatalf("round trip mismatch for %q: %q", text, got)
		}
	}
}

func TestWordsAttachWhitespaceToFollowingWord(t *testing.T) {
	got := Words("  I will  comply. ")
	want := []string{"I", " will", "  comply."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected words: %q", got)
	}
	if strings.Join(got, "") != "I will  comply." {
		t.Fatalf("words do not reconstruct trimmed text")
	}
	if Words(" \n ") != nil {
		t.Fatalf("expected no words for blank text")
	}
}

func TestCountWords(t *testing.T) {
	if n := CountWords("Hello there. How are you."); n != 5 {
		t.Fatalf("expected 5 words, got %d", n)
	}
	if n := CountWords("   "); n != 0 {
		t.Fatalf("expected 0 words, got %d", n)
	}
}
