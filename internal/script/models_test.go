package script

import (
	"errors"
	"testing"
)

func TestTone_Normalize(t *testing.T) {
	cases := []struct {
		in   Tone
		want Tone
	}{
		{"calm", ToneCalm},
		{"CALM", ToneCalm},
		{"  Urgent ", ToneUrgent},
		{"", DefaultTone},
		{"sarcastic", DefaultTone},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Errorf("Normalize(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestSegment_Validate(t *testing.T) {
	valid := Segment{StartTime: 0, EndTime: 5, Label: LabelHook, Text: "hello"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}

	cases := []struct {
		name string
		seg  Segment
	}{
		{"negative start", Segment{StartTime: -1, EndTime: 5, Text: "x"}},
		{"end before start", Segment{StartTime: 5, EndTime: 3, Text: "x"}},
		{"zero length", Segment{StartTime: 5, EndTime: 5, Text: "x"}},
		{"empty text", Segment{StartTime: 0, EndTime: 5, Text: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.seg.Validate(); !errors.Is(err, ErrInvalidSegment) {
				t.Errorf("expected ErrInvalidSegment, got %v", err)
			}
		})
	}
}

func TestSegment_WordCount(t *testing.T) {
	seg := Segment{Text: "  one   two three "}
	if got := seg.WordCount(); got != 3 {
		t.Errorf("expected 3 words, got %d", got)
	}
}

func TestNew(t *testing.T) {
	segs := []Segment{{StartTime: 0, EndTime: 5, Text: "x"}}
	a := New("topic", ToneCalm, 45, segs, nil)
	b := New("topic", ToneCalm, 45, segs, nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique non-empty IDs, got %q and %q", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected creation timestamp set")
	}
}
