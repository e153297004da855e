package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// ClaudeService implements the CompletionService interface using the
// Anthropic Claude API.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  *anthropic.Client
	timeout time.Duration
}

// NewClaudeService creates a new Claude completion service
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (interfaces.CompletionService, error) {
	if config.Mock {
		logger.Warn().Msg("Report synthesis engine running in mock mode")
		return NewMockCompletionService(), nil
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY, SCRIBA_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	service := &ClaudeService{
		config:  config,
		logger:  logger,
		client:  &client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", config.MaxTokens).
		Msg("Claude completion service initialized")

	return service, nil
}

// Complete generates one completion for a system+user prompt pair. The raw
// text is returned as-is; callers own the parsing.
func (s *ClaudeService) Complete(ctx context.Context, systemPrompt, userPrompt string, opts interfaces.CompletionOptions) (*interfaces.CompletionResult, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, fmt.Errorf("user prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = s.config.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	} else if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	startTime := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Claude API")
	}

	tokensUsed := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)

	s.logger.Debug().
		Str("model", model).
		Int("response_length", text.Len()).
		Int("tokens_used", tokensUsed).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return &interfaces.CompletionResult{
		Text:       text.String(),
		Model:      model,
		TokensUsed: tokensUsed,
	}, nil
}

// classifyAPIError marks quota/billing failures as fatal; everything else
// (network, rate limiting, 5xx) stays retryable.
func classifyAPIError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "credit balance") || strings.Contains(msg, "billing") || strings.Contains(msg, "quota") {
		return common.Fatal(fmt.Errorf("Claude API quota/billing error: %w", err))
	}
	return fmt.Errorf("Claude API call failed: %w", err)
}
