package subtitle

import "testing"

func TestHighlightIndex_bounds(t *testing.T) {
	for _, wordCount := range []int{1, 2, 5, 17, 100} {
		for p := -0.5; p <= 1.5; p += 0.01 {
			idx := HighlightIndex(p, wordCount)
			if idx < 0 || idx > wordCount-1 {
				t.Fatalf("progress %f, %d words: index %d out of bounds", p, wordCount, idx)
			}
		}
	}
}

func TestHighlightIndex_monotonic(t *testing.T) {
	const wordCount = 13
	prev := -1
	for p := 0.0; p <= 1.0; p += 0.001 {
		idx := HighlightIndex(p, wordCount)
		if idx < prev {
			t.Fatalf("index went backwards at progress %f: %d -> %d", p, prev, idx)
		}
		prev = idx
	}
}

func TestHighlightIndex(t *testing.T) {
	cases := []struct {
		name      string
		progress  float64
		wordCount int
		want      int
	}{
		{"start", 0, 5, 0},
		{"mid word boundary", 0.41, 5, 2},
		{"just before end", 0.999, 5, 4},
		{"end clamps to last word", 1.0, 5, 4},
		{"overshoot clamps", 1.3, 5, 4},
		{"negative clamps to first", -0.2, 5, 0},
		{"single word", 0.5, 1, 0},
		{"no words", 0.5, 0, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HighlightIndex(tc.progress, tc.wordCount); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestProject(t *testing.T) {
	words := Project("one two three four five", 0.41)
	if len(words) != 5 {
		t.Fatalf("expected 5 words, got %d", len(words))
	}

	wantStates := []WordState{WordSpoken, WordSpoken, WordCurrent, WordUpcoming, WordUpcoming}
	for i, w := range words {
		if w.State != wantStates[i] {
			t.Errorf("word %d (%q): expected state %d, got %d", i, w.Text, wantStates[i], w.State)
		}
	}
	if words[2].Text != "three" {
		t.Errorf("expected current word %q, got %q", "three", words[2].Text)
	}
}

func TestProject_empty_text(t *testing.T) {
	if words := Project("   ", 0.5); words != nil {
		t.Errorf("expected nil for blank text, got %v", words)
	}
}

func TestProject_collapses_whitespace(t *testing.T) {
	words := Project("  hello   world  ", 0)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if words[0].Text != "hello" || words[1].Text != "world" {
		t.Errorf("unexpected words: %v", words)
	}
}
