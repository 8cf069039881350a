package llm

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-review/pkg/ollama"
)

type fakeOllama struct {
	hasModel   bool
	reason     string
	response   string
	genErr     error
	generated  int
	lastPrompt string
}

func (f *fakeOllama) HasModel(ctx context.Context, model string) (bool, string) {
	return f.hasModel, f.reason
}

func (f *fakeOllama) Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error) {
	f.generated++
	f.lastPrompt = req.Prompt
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &ollama.GenerateResponse{Model: req.Model, Response: f.response, Done: true}, nil
}

func TestOllamaSuggest_ModelMissing(t *testing.T) {
	fake := &fakeOllama{hasModel: false, reason: "model_missing"}
	s := NewOllamaSuggester(fake, 10)

	res, err := s.Suggest(context.Background(), Request{Model: "m", Fields: []string{"city"}})
	require.NoError(t, err)
	assert.True(t, res.Unavailable)
	assert.Equal(t, "model_missing", res.Reason)
	assert.Zero(t, fake.generated)
}

func TestOllamaSuggest_NoTargetFields(t *testing.T) {
	fake := &fakeOllama{hasModel: true}
	s := NewOllamaSuggester(fake, 10)

	res, err := s.Suggest(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.False(t, res.Unavailable)
	assert.Empty(t, res.Suggestions)
	assert.Zero(t, fake.generated)
}

func TestOllamaSuggest_Success(t *testing.T) {
	fake := &fakeOllama{
		hasModel: true,
		response: `{"city": {"value": "Pune", "quote": "city of Pune"}}`,
	}
	s := NewOllamaSuggester(fake, 10)

	res, err := s.Suggest(context.Background(), Request{
		Model:    "m",
		Fields:   []string{"city"},
		Evidence: map[string]string{"city": "in the city of Pune"},
	})
	require.NoError(t, err)

	assert.False(t, res.Unavailable)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "Pune", res.Suggestions["city"].Value)
	assert.Equal(t, 1, fake.generated)
	assert.Contains(t, fake.lastPrompt, "in the city of Pune")
}

func TestOllamaSuggest_ConnectionDropIsUnavailability(t *testing.T) {
	fake := &fakeOllama{
		hasModel: true,
		genErr:   &url.Error{Op: "Post", URL: "http://localhost:11434", Err: context.DeadlineExceeded},
	}
	s := NewOllamaSuggester(fake, 10)

	res, err := s.Suggest(context.Background(), Request{Model: "m", Fields: []string{"city"}})
	require.NoError(t, err)
	assert.True(t, res.Unavailable)
	assert.Equal(t, "server_unreachable", res.Reason)
}

func TestOllamaSuggest_MalformedResponseIsError(t *testing.T) {
	fake := &fakeOllama{hasModel: true, response: "not json"}
	s := NewOllamaSuggester(fake, 10)

	_, err := s.Suggest(context.Background(), Request{Model: "m", Fields: []string{"city"}})
	require.Error(t, err)
}
