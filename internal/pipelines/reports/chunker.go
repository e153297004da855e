package reports

import "strings"

// sentence-terminal punctuation, Latin and CJK
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// SplitTranscript splits long text into sentence-bounded segments, each under
// maxChars. Sentence boundaries are detected by terminal punctuation. When a
// single sentence exceeds the budget it is split at the midpoint instead, so
// an oversized transcript always yields at least two segments.
func SplitTranscript(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 12000
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	sentences := splitSentences(text)

	var segments []string
	var current strings.Builder
	for _, sentence := range sentences {
		if len(sentence) > maxChars {
			if current.Len() > 0 {
				segments = append(segments, current.String())
				current.Reset()
			}
			segments = append(segments, midpointSplit(sentence, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence) > maxChars {
			segments = append(segments, current.String())
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}

	// Splitting by sentence collapsed to one oversized segment; guarantee at
	// least two.
	if len(segments) == 1 && len(segments[0]) > maxChars {
		return midpointSplit(segments[0], maxChars)
	}
	if len(segments) == 0 {
		return []string{text}
	}
	return segments
}

// splitSentences cuts text after terminal punctuation, keeping the
// punctuation and any trailing whitespace with the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !sentenceTerminators[runes[i]] {
			continue
		}
		// Consume any run of terminators and following whitespace
		end := i + 1
		for end < len(runes) && (sentenceTerminators[runes[end]] || runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t') {
			end++
		}
		sentences = append(sentences, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

// midpointSplit halves text recursively until every piece fits the budget
func midpointSplit(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}
	runes := []rune(text)
	mid := len(runes) / 2
	left := string(runes[:mid])
	right := string(runes[mid:])
	return append(midpointSplit(left, maxChars), midpointSplit(right, maxChars)...)
}
