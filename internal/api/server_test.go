package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/samcharles93/boost/internal/tokenizer"
	"github.com/samcharles93/boost/internal/toy"
)

func newTestEcho(t *testing.T, m model.Variant, opts ...boost.Option) *echo.Echo {
	t.Helper()
	server := NewServer(Config{
		Model:   m,
		Sampler: samplers.Multinomial(samplers.WithSeed(1)),
		Options: opts,
		Log:     logger.Discard(),
	})
	e := echo.New()
	server.Register(e)
	return e
}

func newLocal(t *testing.T) *model.Local {
	t.Helper()
	local, err := toy.NewLocal(toy.DefaultTokens(), "</s>", 16, 5)
	if err != nil {
		t.Fatalf("toy model: %v", err)
	}
	return local
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestGenerateLocal(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, newLocal(t))
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"pattern":"[0-9]{3}","prompts":["a","b"],"seed":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("missing %s header", headerRequestID)
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "generation" || resp.Backend != "local" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if !strings.HasPrefix(resp.ID, "gen-") {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	re := regexp.MustCompile(`^[0-9]{3}$`)
	if len(resp.Texts) != 2 {
		t.Fatalf("expected 2 texts, got %d", len(resp.Texts))
	}
	for i, text := range resp.Texts {
		if !re.MatchString(text) {
			t.Fatalf("text %d %q does not match", i, text)
		}
		if !resp.Complete[i] {
			t.Fatalf("text %d not complete", i)
		}
	}
	if resp.Usage.TokensGenerated == 0 {
		t.Fatalf("expected token usage")
	}
}

func TestGeneratePropagatesRequestID(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, newLocal(t))
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"pattern":"a","prompt":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("request id: got %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"id":"gen-req-123"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGenerateValidationErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, newLocal(t))
	tests := []struct {
		name   string
		body   string
		status int
		code   string
		msg    string
	}{
		{"bad json", `{"pattern":`, http.StatusBadRequest, "", "decode request"},
		{"no pattern", `{"prompt":"x"}`, http.StatusBadRequest, "", "pattern is required"},
		{"no prompts", `{"pattern":"a"}`, http.StatusBadRequest, "", "at least one prompt"},
		{"both prompt forms", `{"pattern":"a","prompt":"x","prompts":["y"]}`, http.StatusBadRequest, "", "mutually exclusive"},
		{"invalid pattern", `{"pattern":"(a","prompt":"x"}`, http.StatusBadRequest, "invalid_pattern", ""},
		{"word boundary", `{"pattern":"\\bab","prompt":"x"}`, http.StatusBadRequest, "unsupported_pattern", ""},
		{"unsatisfiable", `{"pattern":"ß","prompt":"x"}`, http.StatusBadRequest, "unsatisfiable_pattern", ""},
		{"bad sampler", `{"pattern":"a","prompt":"x","sampler":"beam"}`, http.StatusBadRequest, "invalid_sampler", ""},
	}
	for _, tt := range tests {
		rec := doJSON(t, e, http.MethodPost, "/v1/generate", tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status got %d want %d body=%s", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		body := decodeError(t, rec)
		if body.Type != "invalid_request_error" {
			t.Fatalf("%s: type %q", tt.name, body.Type)
		}
		if body.Code != tt.code {
			t.Fatalf("%s: code got %q want %q", tt.name, body.Code, tt.code)
		}
		if !strings.Contains(body.Message, tt.msg) {
			t.Fatalf("%s: message %q missing %q", tt.name, body.Message, tt.msg)
		}
	}
}

func TestGenerateOpenAIUnsupported(t *testing.T) {
	t.Parallel()

	vocab, err := tokenizer.NewVocab(toy.DefaultTokens(), "</s>")
	if err != nil {
		t.Fatal(err)
	}
	client := openai.NewClient(option.WithAPIKey("test"))
	e := newTestEcho(t, model.NewOpenAI(client, "gpt-4o-mini", vocab))

	// The sampler is irrelevant: even an invalid one yields 422.
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"pattern":"a","prompt":"x","sampler":"beam"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Code != "unsupported_backend" || !strings.Contains(body.Message, "OpenAI") {
		t.Fatalf("unexpected error: %+v", body)
	}
}

type wrapped struct{ *model.Local }

func TestGenerateInvalidVariant(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, wrapped{newLocal(t)}, boost.WithStrict(true))
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"pattern":"a","prompt":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeError(t, rec); body.Code != "invalid_variant" {
		t.Fatalf("unexpected error: %+v", body)
	}
}

type stubMLX struct{}

func (stubMLX) GenerateNative(context.Context, *model.NativeRequest) ([]string, error) {
	return []string{"a"}, nil
}

func TestGenerateIntegrationNotLinked(t *testing.T) {
	t.Parallel()

	vocab, err := tokenizer.NewVocab([]string{"</s>", "a"}, "</s>")
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.NewMLX(stubMLX{}, vocab)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEcho(t, m, boost.WithRegistry(processors.NewRegistry()))
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"pattern":"a","prompt":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rec.Code, rec.Body.String())
	}
	if body := decodeError(t, rec); body.Code != "integration_not_linked" {
		t.Fatalf("unexpected error: %+v", body)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, newLocal(t), boost.WithRegistry(processors.NewRegistry()))
	rec := doJSON(t, e, http.MethodGet, "/v1/backends", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp BackendsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Current != "local" || len(resp.Data) != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	for _, b := range resp.Data {
		switch b.Name {
		case "local":
			if !b.Available || b.Path != "generic" {
				t.Fatalf("local: %+v", b)
			}
		case "openai":
			if b.Available || b.Path != "unsupported" {
				t.Fatalf("openai: %+v", b)
			}
		default:
			if b.Available || b.Path != "adapter" {
				t.Fatalf("%s: %+v", b.Name, b)
			}
		}
	}
}
