package llm

import (
	"context"
	"errors"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/pkg/ollama"
)

// OllamaSuggester runs the fallback against a local Ollama server.
type OllamaSuggester struct {
	client  ollama.Client
	limiter *rate.Limiter
}

// NewOllamaSuggester wraps an Ollama client with rate limiting.
func NewOllamaSuggester(client ollama.Client, requestsPerSec float64) *OllamaSuggester {
	if requestsPerSec <= 0 {
		requestsPerSec = 1
	}
	return &OllamaSuggester{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (s *OllamaSuggester) Suggest(ctx context.Context, req Request) (*Result, error) {
	if ok, reason := s.client.HasModel(ctx, req.Model); !ok {
		zap.L().Info("llm: ollama unavailable", zap.String("model", req.Model), zap.String("reason", reason))
		return &Result{Unavailable: true, Reason: reason}, nil
	}
	if len(req.Fields) == 0 {
		return &Result{Suggestions: map[string]model.Suggestion{}}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "llm: rate limit wait")
	}

	resp, err := s.client.Generate(ctx, ollama.GenerateRequest{
		Model:  req.Model,
		Prompt: buildPrompt(req),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		// A server that vanished mid-run is still unavailability, not a
		// stage failure.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			zap.L().Warn("llm: ollama dropped connection", zap.Error(err))
			return &Result{Unavailable: true, Reason: "server_unreachable"}, nil
		}
		return nil, err
	}

	suggestions, err := parseSuggestions(resp.Response, req.Fields)
	if err != nil {
		return nil, err
	}
	return &Result{Suggestions: suggestions}, nil
}
