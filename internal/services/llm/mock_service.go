package llm

import (
	"context"

	"github.com/ternarybob/scriba/internal/interfaces"
)

// MockCompletionService returns canned structured JSON so the report
// pipelines can run end to end without an API key. Reports produced this way
// carry the mock flag in their generation metadata.
type MockCompletionService struct{}

// NewMockCompletionService creates the mock engine
func NewMockCompletionService() interfaces.CompletionService {
	return &MockCompletionService{}
}

const mockReportJSON = `{
  "summary": "Mock report generated without an engine call.",
  "keyTopics": ["mock"],
  "decisions": [],
  "concerns": [],
  "guidance": [],
  "actionItems": []
}`

func (m *MockCompletionService) Complete(ctx context.Context, systemPrompt, userPrompt string, opts interfaces.CompletionOptions) (*interfaces.CompletionResult, error) {
	return &interfaces.CompletionResult{
		Text:  mockReportJSON,
		Model: "mock",
	}, nil
}
