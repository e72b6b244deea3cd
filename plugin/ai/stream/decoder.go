// Package stream incrementally decodes schema-constrained model output of the
// form {"answer": "...", "sources": ["..."]}, revealing only the portion of
// the answer field that is safe to display while fragments are still arriving.
package stream

import (
	"encoding/json"
	"strings"

	"github.com/paperlens/paperlens/plugin/ai/mathspan"
)

// boundaryPattern marks the transition from the answer field into sources.
// Text inside a trailing window of this length is never revealed, because it
// may still turn out to be the start of the pattern.
const boundaryPattern = `", "sources`

// Decoder accumulates stream fragments and reveals display-safe deltas.
// Not safe for concurrent use; one decoder serves one generation.
type Decoder struct {
	raw      strings.Builder
	emitted  string
	answer   string
	boundary bool
}

// New creates a decoder for a single generation.
func New() *Decoder {
	return &Decoder{}
}

// Feed appends one fragment and returns the newly display-safe delta, empty
// when nothing new can be revealed yet.
func (d *Decoder) Feed(fragment string) string {
	d.raw.WriteString(fragment)
	if d.boundary {
		return ""
	}

	full := d.raw.String()
	start := answerStart(full)
	if start < 0 {
		return ""
	}
	content := full[start:]

	var safe string
	if idx := boundaryIndex(content); idx >= 0 {
		safe = content[:idx]
		d.boundary = true
	} else {
		end := len(content) - len(boundaryPattern)
		if end < 0 {
			end = 0
		}
		// Hold back a lone trailing backslash so a two-character escape
		// sequence is never split across reveals.
		safe = trimTrailingEscape(content[:end])
	}

	processed := mathspan.Protect(safe)
	if d.boundary {
		d.answer = processed
	}
	if !strings.HasPrefix(processed, d.emitted) {
		// A late-closing math span rewrote already-revealed text. What was
		// streamed stays authoritative; stop revealing.
		return ""
	}
	delta := processed[len(d.emitted):]
	d.emitted = processed
	return delta
}

// Revealed returns everything emitted so far.
func (d *Decoder) Revealed() string {
	return d.emitted
}

// Finalize parses the full buffered text once the stream has ended and
// returns the answer plus the sources array. A parse failure yields empty
// sources without failing the turn; the streamed answer is authoritative.
func (d *Decoder) Finalize() (string, []string) {
	answer := d.answer
	if answer == "" {
		answer = d.emitted
	}

	var parsed struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal([]byte(d.raw.String()), &parsed); err != nil {
		return answer, []string{}
	}
	if answer == "" {
		answer = parsed.Answer
	}
	if parsed.Sources == nil {
		return answer, []string{}
	}
	return answer, parsed.Sources
}

// answerStart returns the index just past the answer field's opening quote,
// -1 if the field has not fully appeared yet.
func answerStart(text string) int {
	key := strings.Index(text, `"answer"`)
	if key < 0 {
		return -1
	}
	rest := text[key+len(`"answer"`):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return -1
	}
	quote := strings.Index(rest[colon:], `"`)
	if quote < 0 {
		return -1
	}
	return key + len(`"answer"`) + colon + quote + 1
}

// boundaryIndex locates the boundary pattern, skipping occurrences whose
// leading quote is itself escaped.
func boundaryIndex(content string) int {
	offset := 0
	for {
		idx := strings.Index(content[offset:], boundaryPattern)
		if idx < 0 {
			return -1
		}
		abs := offset + idx
		if trailingBackslashes(content[:abs])%2 == 0 {
			return abs
		}
		offset = abs + 1
	}
}

func trimTrailingEscape(text string) string {
	if trailingBackslashes(text)%2 == 1 {
		return text[:len(text)-1]
	}
	return text
}

func trailingBackslashes(text string) int {
	count := 0
	for i := len(text) - 1; i >= 0 && text[i] == '\\'; i-- {
		count++
	}
	return count
}
