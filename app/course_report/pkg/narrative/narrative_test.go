package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	dm "github.com/iWorld-y/course_report/app/course_report/pkg/model"
	"github.com/iWorld-y/course_report/app/course_report/pkg/secret"
)

type staticSecrets map[string]string

func (s staticSecrets) Lookup(name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", secret.ErrNotFound, name)
}

type fakeChatModel struct {
	replies []*schema.Message
	errs    []error
	calls   int
	prompts []string
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, input[len(input)-1].Content)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return nil, errors.New("no more replies")
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func sampleStats() *dm.Statistics {
	return &dm.Statistics{
		Course:        "Transito",
		TotalStudents: 3,
		ClassAverage:  13.456,
		AverageStdDev: 1.5,
		PassRate:      33.333,
		PassingGrade:  12,
		WorstSubject:  dm.SubjectRef{Code: "MAT", Name: "Matemática", Mean: 10},
		BestSubject:   dm.SubjectRef{Code: "GEO", Name: "Geografia", Mean: 15},
		Summary: []dm.SubjectSummary{
			{Code: "MAT", Name: "Matemática", Count: 3, Mean: 10, Median: 10, StdDev: 2, Min: 8, Max: 12},
			{Code: "GEO", Name: "Geografia", Count: 3, Mean: 15, Median: 15, StdDev: 1, Min: 14, Max: 16},
		},
		WorstSubjectBelowCutoff: 2,
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(sampleStats(), "Transito")
	assert.Contains(t, p, "Curso: Transito")
	assert.Contains(t, p, "Total de Alunos: 3")
	assert.Contains(t, p, "Média Geral (0-20): 13.46")
	assert.Contains(t, p, "Nota >= 12 em tudo): 33.33%")
	assert.Contains(t, p, "| Matemática | 10.00 | 10.00 | 2.00 | 8.00 | 12.00 |")
	assert.Contains(t, p, "menor média (Matemática)")
	assert.Contains(t, p, "nota baixa nela (2)")
}

func TestGenerate_Success(t *testing.T) {
	fake := &fakeChatModel{replies: []*schema.Message{
		{Role: schema.Assistant, Content: "```\n## Desempenho\nA turma tem **bom** desempenho.\n```"},
	}}
	g := NewGenerator(fake)

	text := g.Generate(context.Background(), sampleStats(), "Transito")
	assert.Equal(t, "Desempenho\nA turma tem bom desempenho.", text)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Curso: Transito")
}

func TestGenerate_MissingKey(t *testing.T) {
	n, err := New(context.Background(), config.LLMConfig{Provider: "openai", SecretName: "OPEN_IA"}, staticSecrets{})
	require.NoError(t, err)
	assert.Equal(t, FallbackMissingKey, n.Generate(context.Background(), sampleStats(), "Transito"))
}

func TestNew_Disabled(t *testing.T) {
	n, err := New(context.Background(), config.LLMConfig{Provider: "disabled"}, staticSecrets{})
	require.NoError(t, err)
	assert.Empty(t, n.Generate(context.Background(), sampleStats(), "Transito"))

	_, err = New(context.Background(), config.LLMConfig{Provider: "gemini"}, staticSecrets{})
	assert.Error(t, err)
}

func TestGenerate_EmptyReply(t *testing.T) {
	g := NewGenerator(&fakeChatModel{replies: []*schema.Message{{Role: schema.Assistant, Content: "  "}}})
	assert.Equal(t, FallbackUnexpected, g.Generate(context.Background(), sampleStats(), "Transito"))
}

func TestGenerate_RetryOn429(t *testing.T) {
	fake := &fakeChatModel{
		errs:    []error{&goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}},
		replies: []*schema.Message{nil, {Role: schema.Assistant, Content: "ok"}},
	}
	g := NewGenerator(fake, WithRetry(2, time.Millisecond))
	assert.Equal(t, "ok", g.Generate(context.Background(), sampleStats(), "Transito"))
	assert.Equal(t, 2, fake.calls)

	// 默认不重试
	fake = &fakeChatModel{errs: []error{&goopenai.RequestError{HTTPStatusCode: http.StatusTooManyRequests, Err: errors.New("rate limited")}}}
	g = NewGenerator(fake)
	assert.Equal(t, FallbackHTTP, g.Generate(context.Background(), sampleStats(), "Transito"))
	assert.Equal(t, 1, fake.calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, FallbackUnauthorized},
		{"forbidden", fmt.Errorf("failed to create chat completion: %w", &goopenai.APIError{HTTPStatusCode: http.StatusForbidden}), FallbackForbidden},
		{"server error", &goopenai.RequestError{HTTPStatusCode: http.StatusInternalServerError, Err: errors.New("internal")}, FallbackHTTP},
		{"bad gateway", fmt.Errorf("generate: %w", &goopenai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}), FallbackHTTP},
		{"status text only", errors.New("decode reply: field status code: 401 is not a string"), FallbackProcessing},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), FallbackNetwork},
		{"dial", errors.New(`Post "https://api.openai.com/v1/chat/completions": dial tcp: connection refused`), FallbackNetwork},
		{"unexpected", ErrUnexpectedResponse, FallbackUnexpected},
		{"empty choices", errors.New("received empty choices from API"), FallbackUnexpected},
		{"other", errors.New("json: cannot unmarshal"), FallbackProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.Empty(t, Classify(nil))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusCode(fmt.Errorf("wrap: %w", &goopenai.APIError{HTTPStatusCode: http.StatusForbidden})))
	assert.Equal(t, http.StatusBadGateway, StatusCode(&goopenai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("x")}))
	assert.Zero(t, StatusCode(errors.New("error, status code: 429, status: 429 Too Many Requests")))
	assert.False(t, isRateLimited(errors.New("too many requests")))
}

func TestGenerate_HTTP401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-invalid", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	cfg := config.LLMConfig{Provider: "openai", BaseURL: srv.URL, Model: "gpt-4o-mini", SecretName: "OPEN_IA", Timeout: 5 * time.Second}
	n, err := New(context.Background(), cfg, staticSecrets{"OPEN_IA": "sk-invalid"})
	require.NoError(t, err)

	assert.Equal(t, FallbackUnauthorized, n.Generate(context.Background(), sampleStats(), "Transito"))
}

func TestGenerate_HTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"A turma apresenta desempenho satisfatório."},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	cfg := config.LLMConfig{Provider: "openai", BaseURL: srv.URL, Model: "gpt-4o-mini", SecretName: "OPEN_IA", Timeout: 5 * time.Second}
	n, err := New(context.Background(), cfg, staticSecrets{"OPEN_IA": "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, "A turma apresenta desempenho satisfatório.", n.Generate(context.Background(), sampleStats(), "Transito"))
}
