package reports

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReportContentValidJSON(t *testing.T) {
	raw := `{"summary": "A good meeting", "keyInsights": ["one", "two"]}`
	content, parsed := ParseReportContent(raw)
	assert.True(t, parsed)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	assert.Equal(t, "A good meeting", obj["summary"])
}

func TestParseReportContentStripsCodeFences(t *testing.T) {
	raw := "Here is the report:\n```json\n{\"summary\": \"fenced\"}\n```\nLet me know if you need anything else."
	content, parsed := ParseReportContent(raw)
	assert.True(t, parsed)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	assert.Equal(t, "fenced", obj["summary"])
}

func TestParseReportContentRepairsWordInteriorQuotes(t *testing.T) {
	// Abbreviation orthography: a quote flanked by letters inside a word
	raw := `{"summary": "The client discussed the don"t-panic strategy"}`
	content, parsed := ParseReportContent(raw)
	require.True(t, parsed, "word-interior quote should be repairable")

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	assert.Contains(t, obj["summary"], `don"t`)
}

func TestParseReportContentAggressiveQuoteRepair(t *testing.T) {
	// Free-standing interior quotes that the conservative pass cannot fix
	raw := `{"summary": "The adviser said "stay the course" during the review"}`
	content, parsed := ParseReportContent(raw)
	require.True(t, parsed, "interior quoted phrase should be repairable")

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	assert.Contains(t, obj["summary"], "stay the course")
}

func TestParseReportContentKeySetSurvivesRepair(t *testing.T) {
	raw := `{"summary": "It"s done", "decisions": ["rebalance"], "nextSteps": ["call client"]}`
	content, parsed := ParseReportContent(raw)
	require.True(t, parsed)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	// Repair must never drop or invent top-level keys
	assert.Len(t, obj, 3)
	for _, key := range []string{"summary", "decisions", "nextSteps"} {
		assert.Contains(t, obj, key)
	}
}

func TestParseReportContentUnparseableKeepsRawText(t *testing.T) {
	raw := "I could not produce a report for this meeting, sorry."
	content, parsed := ParseReportContent(raw)
	assert.False(t, parsed)

	// The marker wrapper is itself valid JSON and preserves the raw response
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &obj))
	assert.Equal(t, true, obj["parse_error"])
	assert.Equal(t, raw, obj["raw_text"])
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"fence with prose", "text before\n```json\n{\"a\":1}\n```\ntext after", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestParseSegmentSummaryValid(t *testing.T) {
	raw := `{"keyTopics": ["pensions"], "decisions": ["increase contributions"], "concerns": [], "guidance": ["review annually"]}`
	summary := ParseSegmentSummary(raw)
	assert.Equal(t, []string{"pensions"}, summary.KeyTopics)
	assert.Equal(t, []string{"increase contributions"}, summary.Decisions)
	assert.Empty(t, summary.Concerns)
	assert.Equal(t, []string{"review annually"}, summary.Guidance)
}

func TestParseSegmentSummaryFenced(t *testing.T) {
	raw := "```json\n{\"keyTopics\": [\"tax\"], \"decisions\": [], \"concerns\": [], \"guidance\": []}\n```"
	summary := ParseSegmentSummary(raw)
	assert.Equal(t, []string{"tax"}, summary.KeyTopics)
}

func TestParseSegmentSummaryFieldExtraction(t *testing.T) {
	// Malformed overall, but individual arrays are intact
	raw := `The summary is: "keyTopics": ["ISAs", "fees"], "decisions": ["switch platform"] and that's it`
	summary := ParseSegmentSummary(raw)
	assert.Equal(t, []string{"ISAs", "fees"}, summary.KeyTopics)
	assert.Equal(t, []string{"switch platform"}, summary.Decisions)
}

func TestParseSegmentSummaryNeverEmpty(t *testing.T) {
	summary := ParseSegmentSummary("complete garbage with no structure at all")
	require.False(t, summary.IsEmpty(), "fallback must retain something from the response")
	assert.Contains(t, summary.KeyTopics[0], "complete garbage")
}

func TestSanitizeQuotesNonAggressiveLeavesStructureAlone(t *testing.T) {
	raw := `{"a": "clean", "b": ["x", "y"]}`
	assert.Equal(t, raw, SanitizeQuotes(raw, false), "valid JSON must pass through untouched")
}
