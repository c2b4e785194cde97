package assess

// ErrorType classifies how a spoken word deviated from the reference
// sentence. Values mirror the assessment service's miscue taxonomy.
type ErrorType string

const (
	// ErrorNone marks a word spoken as written.
	ErrorNone ErrorType = "None"

	// ErrorOmission marks a reference word the learner skipped.
	ErrorOmission ErrorType = "Omission"

	// ErrorInsertion marks a spoken word that is not in the reference.
	ErrorInsertion ErrorType = "Insertion"

	// ErrorMispronunciation marks a word spoken with low accuracy.
	ErrorMispronunciation ErrorType = "Mispronunciation"
)

// Result is the sentence-level pronunciation assessment returned with a
// final recognition event. All sentence scores use a 0–100 scale.
//
// Invariant: every [WordResult] either carries a syllable breakdown (the
// normal case) or none at all (omitted and inserted words are scored, if at
// all, as a single unit).
type Result struct {
	// PronScore is the overall pronunciation score.
	PronScore float64 `json:"pronScore"`

	// AccuracyScore reflects phoneme-level correctness.
	AccuracyScore float64 `json:"accuracyScore"`

	// FluencyScore reflects pausing and flow.
	FluencyScore float64 `json:"fluencyScore"`

	// CompletenessScore is the fraction of reference words actually spoken.
	CompletenessScore float64 `json:"completenessScore"`

	// ProsodyScore reflects stress and intonation. Nil when the session was
	// opened without prosody assessment.
	ProsodyScore *float64 `json:"prosodyScore,omitempty"`

	// Words holds the per-word breakdown in spoken order, interleaving
	// reference words with detected insertions.
	Words []WordResult `json:"words"`
}

// WordResult is one word of the assessment, with optional syllable and
// phoneme detail.
type WordResult struct {
	Word string `json:"word"`

	// ErrorType is the miscue classification. An empty value is treated as
	// [ErrorNone].
	ErrorType ErrorType `json:"errorType"`

	// AccuracyScore is the word-level accuracy. Nil when the service did not
	// score the word (e.g. omissions).
	AccuracyScore *float64 `json:"accuracyScore,omitempty"`

	// Syllables is the syllable breakdown. Empty for omitted/inserted words.
	Syllables []SyllableResult `json:"syllables,omitempty"`

	// Phonemes is the word-level phoneme breakdown, when reported outside of
	// syllable grouping.
	Phonemes []PhonemeResult `json:"phonemes,omitempty"`
}

// SyllableResult is one scored syllable of a word.
type SyllableResult struct {
	Syllable string `json:"syllable"`

	// Grapheme is the spelling slice this syllable covers, when reported.
	Grapheme string `json:"grapheme,omitempty"`

	AccuracyScore *float64 `json:"accuracyScore,omitempty"`

	// Phonemes holds the phoneme detail for this syllable, when reported.
	Phonemes []PhonemeResult `json:"phonemes,omitempty"`
}

// PhonemeResult is one scored phoneme.
type PhonemeResult struct {
	Phoneme       string   `json:"phoneme"`
	AccuracyScore *float64 `json:"accuracyScore,omitempty"`
}

// EventKind discriminates the events a session emits.
type EventKind int

const (
	// EventInterim carries a partial recognition hypothesis in Text.
	EventInterim EventKind = iota

	// EventFinal carries the authoritative Result and recognized Text for
	// the full audio pushed since the session opened.
	EventFinal

	// EventNoMatch reports that the service detected no speech. Non-fatal:
	// the attempt simply produced nothing to score.
	EventNoMatch

	// EventCanceled reports a fatal mid-stream cancellation. The session is
	// unusable afterwards; retry requires a brand-new StartSession.
	EventCanceled
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventNoMatch:
		return "nomatch"
	case EventCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Event is one message from a session's event stream.
type Event struct {
	Kind EventKind

	// Text is the partial hypothesis (interim) or recognized text (final).
	Text string

	// Result is set only for EventFinal.
	Result *Result

	// Reason describes the cancellation cause for EventCanceled.
	Reason string

	// Code is the service error code for EventCanceled, when available.
	Code int
}
