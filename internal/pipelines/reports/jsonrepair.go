package reports

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SegmentSummary is the structured extract produced for each transcript
// segment before final synthesis.
type SegmentSummary struct {
	KeyTopics []string `json:"keyTopics"`
	Decisions []string `json:"decisions"`
	Concerns  []string `json:"concerns"`
	Guidance  []string `json:"guidance"`
}

// IsEmpty reports whether no field was recovered
func (s *SegmentSummary) IsEmpty() bool {
	return len(s.KeyTopics) == 0 && len(s.Decisions) == 0 && len(s.Concerns) == 0 && len(s.Guidance) == 0
}

var (
	codeFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

	// A quote flanked by letters on both sides sits inside a word - an
	// abbreviation mark (Hebrew gershayim, Dutch contractions and the like),
	// not a JSON string delimiter.
	wordInteriorQuoteRE = regexp.MustCompile(`(\p{L})"(\p{L})`)

	quotedItemRE = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// StripCodeFences unwraps a markdown-fenced block if the response is wrapped
// in one, otherwise returns the input unchanged.
func StripCodeFences(raw string) string {
	if m := codeFenceRE.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return raw
}

// ParseSegmentSummary recovers a structured summary from a free-text engine
// response through staged fallbacks: parse as-is, parse with fences
// stripped, then regex-extract the known array fields. It always produces a
// non-empty summary - a degraded extract beats failing the whole job.
func ParseSegmentSummary(raw string) *SegmentSummary {
	var summary SegmentSummary
	if err := json.Unmarshal([]byte(raw), &summary); err == nil && !summary.IsEmpty() {
		return &summary
	}

	stripped := StripCodeFences(raw)
	if err := json.Unmarshal([]byte(stripped), &summary); err == nil && !summary.IsEmpty() {
		return &summary
	}

	// Last resort: pull whatever array fields survive in the raw text
	summary = SegmentSummary{
		KeyTopics: extractArrayField(stripped, "keyTopics"),
		Decisions: extractArrayField(stripped, "decisions"),
		Concerns:  extractArrayField(stripped, "concerns"),
		Guidance:  extractArrayField(stripped, "guidance"),
	}
	if summary.IsEmpty() {
		snippet := strings.TrimSpace(stripped)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		summary.KeyTopics = []string{snippet}
	}
	return &summary
}

// extractArrayField regex-extracts the quoted items of one named JSON array
func extractArrayField(raw, field string) []string {
	re := regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(field) + `"\s*:\s*\[(.*?)\]`)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	var items []string
	for _, im := range quotedItemRE.FindAllStringSubmatch(m[1], -1) {
		var decoded string
		if err := json.Unmarshal([]byte(`"`+im[1]+`"`), &decoded); err == nil {
			items = append(items, decoded)
		}
	}
	return items
}

// ParseReportContent recovers the final report object from a raw engine
// response, trying progressively more aggressive rewrites until one parses.
// If every stage fails the raw text is kept verbatim under a parse-error
// marker rather than discarded. The returned string is always valid JSON.
func ParseReportContent(raw string) (content string, parsed bool) {
	candidates := []string{
		raw,
		StripCodeFences(raw),
	}
	stripped := candidates[1]
	// Conversational text often carries unescaped quote characters inside
	// words (abbreviation orthography); sanitize in stages.
	candidates = append(candidates,
		SanitizeQuotes(stripped, false),
		SanitizeQuotes(stripped, true),
	)

	for _, candidate := range candidates {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			normalized, marshalErr := json.Marshal(obj)
			if marshalErr != nil {
				continue
			}
			return string(normalized), true
		}
	}

	marker := map[string]interface{}{
		"parse_error": true,
		"raw_text":    raw,
	}
	data, err := json.Marshal(marker)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"parse_error":true,"raw_text":%q}`, raw))
	}
	return string(data), false
}

// SanitizeQuotes escapes quote characters that cannot be string delimiters.
// The first pass only touches word-interior quotes; the aggressive pass walks
// the text as a JSON string scanner and escapes any interior quote that is
// not followed by a structural character.
func SanitizeQuotes(raw string, aggressive bool) string {
	repaired := wordInteriorQuoteRE.ReplaceAllString(raw, `$1\"$2`)
	if !aggressive {
		return repaired
	}

	var out strings.Builder
	runes := []rune(repaired)
	inString := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' && i+1 < len(runes) {
			out.WriteRune(r)
			out.WriteRune(runes[i+1])
			i++
			continue
		}
		if r != '"' {
			out.WriteRune(r)
			continue
		}
		if !inString {
			inString = true
			out.WriteRune(r)
			continue
		}
		// Inside a string: this quote only terminates it if what follows
		// looks like JSON structure; otherwise it is content.
		if isStringTerminator(runes, i+1) {
			inString = false
			out.WriteRune(r)
		} else {
			out.WriteString(`\"`)
		}
	}
	return out.String()
}

// isStringTerminator checks whether the text after a closing quote is valid
// JSON structure (comma, brace, bracket, colon or end of input).
func isStringTerminator(runes []rune, pos int) bool {
	for ; pos < len(runes); pos++ {
		switch runes[pos] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	return true
}
