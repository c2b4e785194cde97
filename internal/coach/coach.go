// Package coach turns a scored attempt into one short, actionable practice
// tip. Implementations wrap an LLM; use the mock subpackage in tests.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// Coach generates a feedback tip for a completed attempt.
type Coach interface {
	// Tip returns one short coaching sentence for the given attempt. The
	// returned string is plain text, suitable for display as-is.
	Tip(ctx context.Context, referenceText string, res *assess.Result) (string, error)
}

// SystemPrompt is the instruction given to the LLM before the attempt
// summary.
const SystemPrompt = "You are a pronunciation coach for language learners " +
	"practicing shadowing. Given the sentence the learner read and their " +
	"per-word scores, reply with exactly one short, encouraging tip (at most " +
	"two sentences) focused on the weakest part of the attempt. Do not " +
	"repeat the scores back."

// AttemptSummary renders a scored attempt as a compact plain-text block for
// the LLM prompt. Words without a score and miscues are called out
// explicitly so the model can target them.
func AttemptSummary(referenceText string, res *assess.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sentence: %q\n", referenceText)
	if res == nil {
		b.WriteString("No recognition result was produced for this attempt.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Overall pronunciation score: %.0f/100\n", res.PronScore)
	fmt.Fprintf(&b, "Fluency: %.0f/100\n", res.FluencyScore)
	if res.ProsodyScore != nil {
		fmt.Fprintf(&b, "Prosody: %.0f/100\n", *res.ProsodyScore)
	}
	b.WriteString("Words:\n")
	for _, w := range res.Words {
		switch w.ErrorType {
		case assess.ErrorOmission:
			fmt.Fprintf(&b, "- %s: omitted\n", w.Word)
		case assess.ErrorInsertion:
			fmt.Fprintf(&b, "- %s: inserted (not in the sentence)\n", w.Word)
		default:
			if w.AccuracyScore != nil {
				fmt.Fprintf(&b, "- %s: %.0f/100\n", w.Word, *w.AccuracyScore)
			} else {
				fmt.Fprintf(&b, "- %s: unscored\n", w.Word)
			}
		}
	}
	return b.String()
}
