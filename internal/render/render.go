// Package render derives the color-coded practice view from an assessment
// result.
//
// The renderer walks the hierarchical word → syllable breakdown and produces
// a flat sequence of styled units for the presentation layer. Omitted and
// inserted words collapse to single tagged units; everything else is colored
// per syllable with a word-level fallback when no syllable detail exists.
package render

import "github.com/sorilabs/sori/pkg/provider/assess"

// Band is the discrete display category for a 0–100 score.
type Band string

const (
	BandPass    Band = "pass"
	BandWarn    Band = "warn"
	BandFail    Band = "fail"
	BandUnknown Band = "unknown"
)

// Banding maps a score to its display band: >= 80 pass, >= 60 warn,
// otherwise fail. A missing score maps to BandUnknown (rendered neutral).
// Total and deterministic for every input.
func Banding(score *float64) Band {
	switch {
	case score == nil:
		return BandUnknown
	case *score >= 80:
		return BandPass
	case *score >= 60:
		return BandWarn
	default:
		return BandFail
	}
}

// Tag marks the miscue treatment of a rendered unit.
type Tag string

const (
	// TagOmitted marks a reference word the learner skipped; rendered
	// struck-through with no syllable expansion.
	TagOmitted Tag = "omitted"

	// TagInserted marks a word the learner added; rendered with an insertion
	// marker and no syllable expansion.
	TagInserted Tag = "inserted"
)

// Unit is one styled fragment of the practice view. Units belonging to the
// same word are emitted consecutively; LeadingSpace is set on the first unit
// of a word that needs a separator from its predecessor.
type Unit struct {
	// Text is the displayed fragment: a whole word or a single syllable
	// grapheme.
	Text string `json:"text"`

	// Band is the color category for this fragment.
	Band Band `json:"band"`

	// Score is the fragment's accuracy score, when available.
	Score *float64 `json:"score,omitempty"`

	// Tag is set for omitted/inserted words, empty otherwise.
	Tag Tag `json:"tag,omitempty"`

	// Syllable reports whether this unit is a syllable fragment rather than
	// a whole word.
	Syllable bool `json:"syllable,omitempty"`

	// LeadingSpace requests a separator before this unit.
	LeadingSpace bool `json:"leadingSpace,omitempty"`
}

// Render produces the styled view for one sentence. When result is nil (no
// assessment yet) the plain sentence text is returned as a single neutral
// unit. Otherwise result.Words are walked in order per the miscue rules.
func Render(text string, result *assess.Result) []Unit {
	if result == nil {
		if text == "" {
			return nil
		}
		return []Unit{{Text: text, Band: BandUnknown}}
	}

	var units []Unit
	for i, w := range result.Words {
		// Inserted words pack tightly against their neighbour; everything
		// else gets a separator after the first word.
		lead := i > 0 && w.ErrorType != assess.ErrorInsertion

		switch w.ErrorType {
		case assess.ErrorOmission:
			units = append(units, Unit{
				Text:         w.Word,
				Band:         BandUnknown,
				Tag:          TagOmitted,
				LeadingSpace: lead,
			})

		case assess.ErrorInsertion:
			// Insertions never expand to syllables, even when the service
			// reports them.
			units = append(units, Unit{
				Text:         w.Word,
				Band:         Banding(w.AccuracyScore),
				Score:        w.AccuracyScore,
				Tag:          TagInserted,
				LeadingSpace: lead,
			})

		default:
			if len(w.Syllables) == 0 {
				units = append(units, Unit{
					Text:         w.Word,
					Band:         Banding(w.AccuracyScore),
					Score:        w.AccuracyScore,
					LeadingSpace: lead,
				})
				continue
			}
			for j, syl := range w.Syllables {
				display := syl.Grapheme
				if display == "" {
					display = syl.Syllable
				}
				units = append(units, Unit{
					Text:         display,
					Band:         Banding(syl.AccuracyScore),
					Score:        syl.AccuracyScore,
					Syllable:     true,
					LeadingSpace: lead && j == 0,
				})
			}
		}
	}
	return units
}
