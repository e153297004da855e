package reports

import (
	"fmt"
	"strings"

	"github.com/ternarybob/scriba/internal/models"
)

const segmentSystemPrompt = `You are an assistant that extracts structured notes from a segment of an advisory meeting transcript. Respond with a single JSON object and nothing else, using this shape:
{"keyTopics": [...], "decisions": [...], "concerns": [...], "guidance": [...]}
Each field is an array of short strings. Use empty arrays for fields with no content.`

const adviserSystemPrompt = `You are an assistant that analyses an adviser's performance in a recorded advisory meeting. Respond with a single JSON object and nothing else, using this shape:
{"summary": "...", "strengths": [...], "improvementAreas": [...], "complianceNotes": [...], "keyTopics": [...], "followUps": [...]}`

const clientSystemPrompt = `You are an assistant that writes a client-facing summary of an advisory meeting. Respond with a single JSON object and nothing else, using this shape:
{"summary": "...", "keyInsights": [...], "decisions": [...], "actionItems": [...], "nextSteps": [...]}`

// sessionContext renders the meeting context lines shared by every prompt
func sessionContext(session *models.Session, notes string) string {
	var b strings.Builder
	if session.ClientName != "" {
		fmt.Fprintf(&b, "Client: %s\n", session.ClientName)
	}
	if session.AdviserName != "" {
		fmt.Fprintf(&b, "Adviser: %s\n", session.AdviserName)
	}
	if !session.MeetingDate.IsZero() {
		fmt.Fprintf(&b, "Meeting date: %s\n", session.MeetingDate.Format("2006-01-02"))
	}
	if session.LanguageHint != "" {
		fmt.Fprintf(&b, "Transcript language: %s\n", session.LanguageHint)
	}
	if notes != "" {
		fmt.Fprintf(&b, "Additional notes from the requester: %s\n", notes)
	}
	return b.String()
}

func buildSegmentPrompt(segment string, index, total int) string {
	return fmt.Sprintf("Segment %d of %d of the meeting transcript:\n\n%s", index+1, total, segment)
}

func systemPromptFor(reportType models.ReportType) string {
	if reportType == models.ReportTypeAdviser {
		return adviserSystemPrompt
	}
	return clientSystemPrompt
}

func buildDirectPrompt(transcript string, reportType models.ReportType, session *models.Session, notes string) string {
	return fmt.Sprintf("%s\nFull meeting transcript:\n\n%s", sessionContext(session, notes), transcript)
}

func buildSynthesisPrompt(aggregate *SegmentSummary, reportType models.ReportType, session *models.Session, notes string) string {
	var b strings.Builder
	b.WriteString(sessionContext(session, notes))
	b.WriteString("The meeting transcript was processed in segments. Combined segment notes:\n\n")
	writeList(&b, "Key topics", aggregate.KeyTopics)
	writeList(&b, "Decisions", aggregate.Decisions)
	writeList(&b, "Concerns", aggregate.Concerns)
	writeList(&b, "Guidance", aggregate.Guidance)
	b.WriteString("\nProduce the final report from these notes.")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
