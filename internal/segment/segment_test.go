package segment_test

import (
	"strings"
	"testing"

	"github.com/sorilabs/sori/internal/segment"
)

func timed(words ...string) []segment.TimedWord {
	out := make([]segment.TimedWord, len(words))
	for i, w := range words {
		out[i] = segment.TimedWord{Word: w, Start: float64(i), End: float64(i) + 0.5}
	}
	return out
}

func TestSegment_PunctuationBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		want  []string
	}{
		{
			name:  "period question exclamation",
			words: []string{"Hello", "world.", "Really?", "Wow!"},
			want:  []string{"Hello world.", "Really?", "Wow!"},
		},
		{
			name:  "trailing run flushed at end",
			words: []string{"Hello", "world.", "Bye"},
			want:  []string{"Hello world.", "Bye"},
		},
		{
			name:  "single unterminated word",
			words: []string{"Hello"},
			want:  []string{"Hello"},
		},
		{
			name:  "every word terminated",
			words: []string{"One.", "Two.", "Three."},
			want:  []string{"One.", "Two.", "Three."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segment.Segment(timed(tt.words...))
			if len(got) != len(tt.want) {
				t.Fatalf("sentence count: got %d, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if got[i].Text != want {
					t.Errorf("sentence %d: got %q, want %q", i, got[i].Text, want)
				}
			}
		})
	}
}

func TestSegment_Empty(t *testing.T) {
	if got := segment.Segment(nil); len(got) != 0 {
		t.Fatalf("expected no sentences, got %d", len(got))
	}
}

// TestSegment_Reconstitution checks the core invariants: concatenated word
// lists reconstitute the input exactly, every Text equals its space-joined
// words, no sentence is empty, and ids are unique.
func TestSegment_Reconstitution(t *testing.T) {
	in := timed("It", "was", "a", "dark", "night.", "The", "wind", "howled!", "Then", "silence")
	got := segment.Segment(in)

	seen := map[string]bool{}
	var flat []segment.TimedWord
	for _, s := range got {
		if len(s.Words) == 0 {
			t.Fatalf("sentence %q has zero words", s.ID)
		}
		parts := make([]string, len(s.Words))
		for i, w := range s.Words {
			parts[i] = w.Word
		}
		if joined := strings.Join(parts, " "); joined != s.Text {
			t.Errorf("text invariant: %q != %q", s.Text, joined)
		}
		if seen[s.ID] {
			t.Errorf("duplicate sentence id %q", s.ID)
		}
		seen[s.ID] = true
		flat = append(flat, s.Words...)
	}

	if len(flat) != len(in) {
		t.Fatalf("word count: got %d, want %d", len(flat), len(in))
	}
	for i := range in {
		if flat[i] != in[i] {
			t.Errorf("word %d: got %+v, want %+v", i, flat[i], in[i])
		}
	}
}

// TestSegment_DeterministicIDs checks that resegmenting the same transcript
// yields identical sentence ids, so ids handed to clients stay resolvable.
func TestSegment_DeterministicIDs(t *testing.T) {
	in := timed("Hello", "world.", "Bye")
	first := segment.Segment(in)
	second := segment.Segment(in)

	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("sentence %d id changed: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
	if first[0].ID != "s1" || first[1].ID != "s2" {
		t.Errorf("ids = %q, %q; want s1, s2", first[0].ID, first[1].ID)
	}
}
