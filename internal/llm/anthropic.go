package llm

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lease-review/internal/model"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicSuggester runs the fallback against the Anthropic API.
type AnthropicSuggester struct {
	client  sdk.Client
	model   string
	limiter *rate.Limiter
}

// NewAnthropicSuggester creates an API-backed suggester.
func NewAnthropicSuggester(apiKey, modelName string, requestsPerSec float64) *AnthropicSuggester {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 1
	}
	return &AnthropicSuggester{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		model:   modelName,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (s *AnthropicSuggester) Suggest(ctx context.Context, req Request) (*Result, error) {
	if len(req.Fields) == 0 {
		return &Result{Suggestions: map[string]model.Suggestion{}}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "llm: rate limit wait")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = s.model
	}

	msg, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(modelName),
		MaxTokens: 2048,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		// API outages degrade like a missing local model; bad requests are
		// real failures.
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			return nil, eris.Wrap(err, "llm: anthropic request")
		}
		zap.L().Warn("llm: anthropic unavailable", zap.Error(err))
		return &Result{Unavailable: true, Reason: "api_unreachable"}, nil
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	suggestions, err := parseSuggestions(text.String(), req.Fields)
	if err != nil {
		return nil, err
	}
	return &Result{Suggestions: suggestions}, nil
}
