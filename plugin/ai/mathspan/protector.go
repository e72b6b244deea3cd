// Package mathspan shields math markup from string transforms. Model output
// arrives as a JSON-escaped string; unescaping it naively would turn the
// backslashes of TeX control words into JSON control characters. Extract pulls
// math spans out behind placeholders so the surrounding text can be unescaped
// freely, and Rehydrate puts them back with exactly one unescape pass each.
package mathspan

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder format. NUL bytes never occur in model output, so a placeholder
// cannot collide with real text.
const placeholderFormat = "\x00MATH%d\x00"

// Delimiter patterns, display forms before inline forms. A display span must
// never be partially matched by the inline pattern, so order is significant.
// Bracket delimiters tolerate one or two leading backslashes because upstream
// JSON escaping doubles them.
var delimiterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\$[\s\S]+?\$\$`),             // display: $$ ... $$
	regexp.MustCompile(`\\{1,2}\[[\s\S]+?\\{1,2}\]`),   // display: \[ ... \]
	regexp.MustCompile(`\$[^$\n]+\$`),                  // inline: $ ... $
	regexp.MustCompile(`\\{1,2}\([\s\S]+?\\{1,2}\)`),   // inline: \( ... \)
}

// Extract replaces every recognized math span in text with a positional
// placeholder and returns the protected body plus the spans verbatim, escape
// sequences included.
func Extract(text string) (string, []string) {
	body := text
	var spans []string
	for _, pattern := range delimiterPatterns {
		body = pattern.ReplaceAllStringFunc(body, func(match string) string {
			placeholder := fmt.Sprintf(placeholderFormat, len(spans))
			spans = append(spans, match)
			return placeholder
		})
	}
	return body, spans
}

// Rehydrate substitutes the spans back into body. Each span gets exactly one
// unescape pass before substitution, never before extraction, so doubled
// backslashes inside math survive as single backslashes rather than being
// misread as control sequences.
func Rehydrate(body string, spans []string) string {
	for i, span := range spans {
		placeholder := fmt.Sprintf(placeholderFormat, i)
		body = strings.Replace(body, placeholder, UnescapeJSONString(span), 1)
	}
	return body
}

// backslashSentinel temporarily stands in for doubled backslashes during
// unescaping so their halves are not reinterpreted individually.
const backslashSentinel = "\x01\x01"

// UnescapeJSONString converts literal JSON escape sequences to their real
// characters. Apply only to text that already had math spans extracted.
func UnescapeJSONString(text string) string {
	text = strings.ReplaceAll(text, `\\`, backslashSentinel)
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\t`, "\t")
	text = strings.ReplaceAll(text, `\r`, "\r")
	text = strings.ReplaceAll(text, `\"`, `"`)
	text = strings.ReplaceAll(text, `\/`, `/`)
	return strings.ReplaceAll(text, backslashSentinel, `\`)
}

// Protect runs the full extract, unescape, rehydrate cycle over text. This is
// the transform the stream decoder applies to each revealed chunk.
func Protect(text string) string {
	body, spans := Extract(text)
	return Rehydrate(UnescapeJSONString(body), spans)
}
