// Package align synthesizes miscue tags for assessment results that arrive
// without them.
//
// Sessions opened against a degraded provider (miscue detection off, or a
// fallback region with a reduced feature set) return a word list that simply
// mirrors what was recognized. This package aligns that list against the
// reference sentence with a word-level edit-distance pass and tags the
// differences: reference words with no spoken counterpart become omissions,
// spoken words with no reference counterpart become insertions.
//
// Word equivalence is phonetic rather than orthographic: two words match when
// their Double Metaphone codes overlap or their Jaro-Winkler similarity
// clears a threshold, so "there"/"their" style recognition drift does not
// produce spurious miscues.
package align

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// similarityThreshold is the minimum Jaro-Winkler score for two words to be
// considered the same word when their phonetic codes do not overlap.
const similarityThreshold = 0.85

// Tag returns a copy of result with Omission/Insertion tags synthesized from
// the reference sentence. When any word already carries an explicit miscue
// tag the result is returned unchanged — the provider's own detection is
// authoritative.
func Tag(referenceText string, result *assess.Result) *assess.Result {
	if result == nil {
		return nil
	}
	for _, w := range result.Words {
		if w.ErrorType == assess.ErrorOmission || w.ErrorType == assess.ErrorInsertion {
			return result
		}
	}

	ref := strings.Fields(referenceText)
	if len(ref) == 0 {
		return result
	}

	merged := &assess.Result{
		PronScore:         result.PronScore,
		AccuracyScore:     result.AccuracyScore,
		FluencyScore:      result.FluencyScore,
		CompletenessScore: result.CompletenessScore,
		ProsodyScore:      result.ProsodyScore,
	}
	for _, op := range alignWords(ref, result.Words) {
		switch op.kind {
		case opMatch:
			merged.Words = append(merged.Words, result.Words[op.spoken])
		case opOmit:
			merged.Words = append(merged.Words, assess.WordResult{
				Word:      ref[op.ref],
				ErrorType: assess.ErrorOmission,
			})
		case opInsert:
			w := result.Words[op.spoken]
			w.ErrorType = assess.ErrorInsertion
			w.Syllables = nil
			merged.Words = append(merged.Words, w)
		}
	}
	return merged
}

type opKind int

const (
	opMatch opKind = iota
	opOmit
	opInsert
)

// op is one step of the alignment: a matched pair, an omitted reference word,
// or an inserted spoken word.
type op struct {
	kind   opKind
	ref    int
	spoken int
}

// alignWords computes a minimum-cost alignment between the reference words
// and the spoken word results. Matches cost 0, everything else costs 1; ties
// prefer matches so the common all-correct case degenerates to a straight
// zip.
func alignWords(ref []string, spoken []assess.WordResult) []op {
	n, m := len(ref), len(spoken)

	// dist[i][j] = cost of aligning ref[:i] with spoken[:j].
	dist := make([][]int, n+1)
	for i := range dist {
		dist[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		dist[i][0] = i
	}
	for j := 1; j <= m; j++ {
		dist[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			omit := dist[i-1][j] + 1
			insert := dist[i][j-1] + 1
			match := dist[i-1][j-1]
			if !sameWord(ref[i-1], spoken[j-1].Word) {
				// A substitution is an omission plus an insertion; there is
				// no single-op replacement in miscue terms.
				match += 2
			}
			dist[i][j] = min(match, min(omit, insert))
		}
	}

	// Backtrace from the corner, preferring matches.
	var ops []op
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && sameWord(ref[i-1], spoken[j-1].Word) && dist[i][j] == dist[i-1][j-1]:
			ops = append(ops, op{kind: opMatch, ref: i - 1, spoken: j - 1})
			i--
			j--
		case i > 0 && dist[i][j] == dist[i-1][j]+1:
			ops = append(ops, op{kind: opOmit, ref: i - 1})
			i--
		default:
			ops = append(ops, op{kind: opInsert, spoken: j - 1})
			j--
		}
	}

	// Reverse into sentence order.
	for a, b := 0, len(ops)-1; a < b; a, b = a+1, b-1 {
		ops[a], ops[b] = ops[b], ops[a]
	}
	return ops
}

// sameWord reports whether a reference word and a recognized word are the
// same word for miscue purposes.
func sameWord(ref, spoken string) bool {
	a := normalize(ref)
	b := normalize(spoken)
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap != "" && (ap == bp || ap == bs) {
		return true
	}
	if as != "" && (as == bp || as == bs) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= similarityThreshold
}

// normalize lowercases a word and strips surrounding punctuation so that
// "test." and "Test" compare equal.
func normalize(w string) string {
	return strings.Trim(strings.ToLower(w), ".,!?;:\"'")
}
