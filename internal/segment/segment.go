// Package segment splits a flat, timestamped transcript word stream into
// sentence units for shadowing practice.
//
// Segmentation is a punctuation-boundary heuristic: a sentence closes after
// any word ending in '.', '?', or '!', and a trailing run without terminal
// punctuation is flushed as a final sentence. The algorithm is deterministic
// and pure, so sentences can be derived once at transcript-load time and
// treated as immutable for the rest of the page session.
package segment

import (
	"fmt"
	"strings"
)

// TimedWord is one transcript word with its utterance interval in seconds.
// Produced by the external transcript source; ordered by Start.
type TimedWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Sentence is a contiguous run of transcript words bounded by sentence-ending
// punctuation or end-of-stream.
//
// Invariants: Text equals the space-joined Words[].Word, and IDs are
// deterministic ordinals ("s1", "s2", …) so repeated segmentation of the
// same transcript yields stable identifiers.
type Sentence struct {
	ID    string      `json:"id"`
	Text  string      `json:"text"`
	Words []TimedWord `json:"words"`
}

// Segment splits words into sentences. It never returns an error or panics:
// empty input yields an empty slice, and no returned sentence has zero words.
func Segment(words []TimedWord) []Sentence {
	var (
		sentences []Sentence
		run       []TimedWord
	)
	for i, w := range words {
		run = append(run, w)
		if endsSentence(w.Word) || i == len(words)-1 {
			sentences = append(sentences, closeRun(run, len(sentences)+1))
			run = nil
		}
	}
	return sentences
}

// closeRun finalises an accumulated word run as the ordinal-th Sentence.
func closeRun(run []TimedWord, ordinal int) Sentence {
	parts := make([]string, len(run))
	for i, w := range run {
		parts[i] = w.Word
	}
	words := make([]TimedWord, len(run))
	copy(words, run)
	return Sentence{
		ID:    fmt.Sprintf("s%d", ordinal),
		Text:  strings.TrimSpace(strings.Join(parts, " ")),
		Words: words,
	}
}

// endsSentence reports whether word terminates a sentence.
func endsSentence(word string) bool {
	if word == "" {
		return false
	}
	switch word[len(word)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}
