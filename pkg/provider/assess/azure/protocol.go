package azure

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// The speech service multiplexes typed messages over one WebSocket. Text
// messages carry a MIME-style header block terminated by a blank line,
// followed by a JSON body; binary messages carry the same header block
// prefixed with its big-endian uint16 length, followed by raw audio bytes.
const (
	headerTerminator = "\r\n\r\n"

	pathSpeechConfig     = "speech.config"
	pathSpeechContext    = "speech.context"
	pathAudio            = "audio"
	pathTurnStart        = "turn.start"
	pathTurnEnd          = "turn.end"
	pathSpeechStart      = "speech.startDetected"
	pathSpeechEnd        = "speech.endDetected"
	pathSpeechHypothesis = "speech.hypothesis"
	pathSpeechPhrase     = "speech.phrase"
)

// textMessage renders a service text message with the standard header block.
func textMessage(path, requestID string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Path: %s\r\n", path)
	fmt.Fprintf(&b, "X-RequestId: %s\r\n", requestID)
	fmt.Fprintf(&b, "X-Timestamp: %s\r\n", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString("Content-Type: application/json; charset=utf-8")
	b.WriteString(headerTerminator)
	b.Write(body)
	return b.Bytes()
}

// audioMessage renders a binary audio message. An empty payload is the
// end-of-audio marker that tells the service to finalise the turn.
func audioMessage(requestID string, payload []byte) []byte {
	var h bytes.Buffer
	fmt.Fprintf(&h, "Path: %s\r\n", pathAudio)
	fmt.Fprintf(&h, "X-RequestId: %s\r\n", requestID)
	fmt.Fprintf(&h, "X-Timestamp: %s\r\n", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	h.WriteString("Content-Type: audio/x-wav")

	out := make([]byte, 2+h.Len()+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(h.Len()))
	copy(out[2:], h.Bytes())
	copy(out[2+h.Len():], payload)
	return out
}

// parseTextMessage splits a service text message into its Path header value
// and JSON body. Unknown headers are ignored.
func parseTextMessage(data []byte) (path string, body []byte, ok bool) {
	idx := bytes.Index(data, []byte(headerTerminator))
	if idx < 0 {
		return "", nil, false
	}
	for line := range strings.SplitSeq(string(data[:idx]), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Path") {
			path = strings.TrimSpace(value)
		}
	}
	if path == "" {
		return "", nil, false
	}
	return path, data[idx+len(headerTerminator):], true
}

// speechConfigBody is the system/context descriptor sent once per connection.
type speechConfigBody struct {
	Context struct {
		System struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"system"`
		Audio struct {
			Source struct {
				SampleRate    int `json:"samplerate"`
				BitsPerSample int `json:"bitspersample"`
				ChannelCount  int `json:"channelcount"`
			} `json:"source"`
		} `json:"audio"`
	} `json:"context"`
}

// newSpeechConfigBody builds the speech.config body for a session.
func newSpeechConfigBody(cfg assess.SessionConfig) []byte {
	var b speechConfigBody
	b.Context.System.Name = "sori"
	b.Context.System.Version = "1.0"
	b.Context.Audio.Source.SampleRate = cfg.SampleRate
	b.Context.Audio.Source.BitsPerSample = 16
	b.Context.Audio.Source.ChannelCount = cfg.Channels
	out, _ := json.Marshal(b)
	return out
}

// newSpeechContextBody builds the speech.context body carrying the
// pronunciation-assessment parameters: reference text, hundred-mark grading,
// phoneme granularity, and the miscue/prosody switches.
func newSpeechContextBody(cfg assess.SessionConfig) []byte {
	pa := map[string]any{
		"referenceText": cfg.ReferenceText,
		"gradingSystem": "HundredMark",
		"granularity":   "Phoneme",
		"dimension":     "Comprehensive",
		"enableMiscue":  cfg.EnableMiscue,
	}
	if cfg.EnableProsody {
		pa["enableProsodyAssessment"] = true
	}
	body := map[string]any{
		"phraseDetection": map[string]any{
			"enrichment": map[string]any{
				"pronunciationAssessment": pa,
			},
		},
		"phraseOutput": map[string]any{
			"format": "Detailed",
			"detailed": map[string]any{
				"options": []string{"WordTimings", "PronunciationAssessment"},
			},
		},
	}
	out, _ := json.Marshal(body)
	return out
}

// hypothesisBody is the JSON body of a speech.hypothesis message.
type hypothesisBody struct {
	Text string `json:"Text"`
}

// phraseBody is the JSON body of a speech.phrase message in detailed format.
type phraseBody struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Confidence              float64 `json:"Confidence"`
		Lexical                 string  `json:"Lexical"`
		Display                 string  `json:"Display"`
		PronunciationAssessment struct {
			AccuracyScore     float64  `json:"AccuracyScore"`
			FluencyScore      float64  `json:"FluencyScore"`
			CompletenessScore float64  `json:"CompletenessScore"`
			PronScore         float64  `json:"PronScore"`
			ProsodyScore      *float64 `json:"ProsodyScore"`
		} `json:"PronunciationAssessment"`
		Words []phraseWord `json:"Words"`
	} `json:"NBest"`
}

type phraseWord struct {
	Word                    string `json:"Word"`
	PronunciationAssessment struct {
		AccuracyScore *float64 `json:"AccuracyScore"`
		ErrorType     string   `json:"ErrorType"`
	} `json:"PronunciationAssessment"`
	Syllables []struct {
		Syllable                string `json:"Syllable"`
		Grapheme                string `json:"Grapheme"`
		PronunciationAssessment struct {
			AccuracyScore *float64 `json:"AccuracyScore"`
		} `json:"PronunciationAssessment"`
	} `json:"Syllables"`
	Phonemes []struct {
		Phoneme                 string `json:"Phoneme"`
		PronunciationAssessment struct {
			AccuracyScore *float64 `json:"AccuracyScore"`
		} `json:"PronunciationAssessment"`
	} `json:"Phonemes"`
}

// statusNoMatch lists recognition statuses treated as "no speech detected"
// rather than as errors.
var statusNoMatch = map[string]bool{
	"NoMatch":               true,
	"InitialSilenceTimeout": true,
	"BabbleTimeout":         true,
}

// parsePhrase converts a speech.phrase body into the provider-neutral result.
// A Success status yields a non-nil result; for every other status the result
// is nil and the caller inspects status to tell no-match from error.
func parsePhrase(body []byte) (r *assess.Result, text string, status string, err error) {
	var pb phraseBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return nil, "", "", fmt.Errorf("azure: decode speech.phrase: %w", err)
	}
	if pb.RecognitionStatus != "Success" {
		return nil, "", pb.RecognitionStatus, nil
	}
	if len(pb.NBest) == 0 {
		return nil, "", "NoMatch", nil
	}

	best := pb.NBest[0]
	res := &assess.Result{
		PronScore:         best.PronunciationAssessment.PronScore,
		AccuracyScore:     best.PronunciationAssessment.AccuracyScore,
		FluencyScore:      best.PronunciationAssessment.FluencyScore,
		CompletenessScore: best.PronunciationAssessment.CompletenessScore,
		ProsodyScore:      best.PronunciationAssessment.ProsodyScore,
		Words:             make([]assess.WordResult, 0, len(best.Words)),
	}
	for _, w := range best.Words {
		wr := assess.WordResult{
			Word:          w.Word,
			ErrorType:     assess.ErrorType(w.PronunciationAssessment.ErrorType),
			AccuracyScore: w.PronunciationAssessment.AccuracyScore,
		}
		for _, s := range w.Syllables {
			wr.Syllables = append(wr.Syllables, assess.SyllableResult{
				Syllable:      s.Syllable,
				Grapheme:      s.Grapheme,
				AccuracyScore: s.PronunciationAssessment.AccuracyScore,
			})
		}
		for _, p := range w.Phonemes {
			wr.Phonemes = append(wr.Phonemes, assess.PhonemeResult{
				Phoneme:       p.Phoneme,
				AccuracyScore: p.PronunciationAssessment.AccuracyScore,
			})
		}
		res.Words = append(res.Words, wr)
	}

	text = pb.DisplayText
	if text == "" {
		text = best.Display
	}
	return res, text, pb.RecognitionStatus, nil
}
