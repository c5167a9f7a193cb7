package vllm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/processors"
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/samcharles93/boost/internal/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVocab(t *testing.T) *tokenizer.Vocab {
	t.Helper()
	vocab, err := tokenizer.NewVocab([]string{"</s>", "0", "1", "2", "-"}, "</s>")
	require.NoError(t, err)
	return vocab
}

// completionServer records request bodies and answers every completions
// call with the given texts in order.
type completionServer struct {
	mu     sync.Mutex
	bodies []map[string]any
	texts  []string
	status int
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/completions") {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":{"message":"bad guided_regex","type":"invalid_request_error"}}`))
		return
	}
	choices := make([]map[string]any, 0, len(s.texts))
	// Out of order on purpose: the engine must place choices by index.
	for i := len(s.texts) - 1; i >= 0; i-- {
		choices = append(choices, map[string]any{"index": i, "text": s.texts[i], "finish_reason": "stop"})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-test",
		"object":  "text_completion",
		"created": 1,
		"model":   "m",
		"choices": choices,
		"usage":   map[string]any{"prompt_tokens": 2, "completion_tokens": 6, "total_tokens": 8},
	})
}

func newServer(t *testing.T, h http.Handler) *Server {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	srv, err := NewServer(ServerConfig{BaseURL: ts.URL + "/v1", Model: "m", Tokenizer: newVocab(t)})
	require.NoError(t, err)
	return srv
}

func TestServerForwardsRegex(t *testing.T) {
	t.Parallel()
	cs := &completionServer{texts: []string{"1-2", "0-1"}}
	srv := newServer(t, cs)

	proc, err := NewRegexLogitsProcessor(`[0-9]-[0-9]`, srv)
	require.NoError(t, err)

	texts, err := srv.GenerateNative(context.Background(), &model.NativeRequest{
		Prompts:   []string{"a", "b"},
		MaxTokens: 8,
		StopAt:    []string{"\n"},
		Sampler:   samplers.Multinomial(samplers.WithSeed(4), samplers.WithTopK(3), samplers.WithTemperature(0.5)),
		Processor: proc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1-2", "0-1"}, texts)

	require.Len(t, cs.bodies, 1)
	body := cs.bodies[0]
	assert.Equal(t, `[0-9]-[0-9]`, body["guided_regex"])
	assert.Equal(t, "m", body["model"])
	assert.Equal(t, []any{"a", "b"}, body["prompt"])
	assert.EqualValues(t, 8, body["max_tokens"])
	assert.EqualValues(t, 4, body["seed"])
	assert.EqualValues(t, 3, body["top_k"])
	assert.EqualValues(t, 0.5, body["temperature"])
	assert.Equal(t, []any{"\n"}, body["stop"])
}

func TestServerGreedy(t *testing.T) {
	t.Parallel()
	cs := &completionServer{texts: []string{"2"}}
	srv := newServer(t, cs)
	_, err := srv.GenerateNative(context.Background(), &model.NativeRequest{
		Prompts:   []string{"a"},
		MaxTokens: 1,
		Sampler:   samplers.Greedy(),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, cs.bodies[0]["temperature"])
	assert.NotContains(t, cs.bodies[0], "guided_regex")
	assert.NotContains(t, cs.bodies[0], "seed", "unseeded samplers leave the seed to the server")
}

type opaqueProcessor struct{}

func (opaqueProcessor) Process([]int, []float32) error { return nil }

func TestServerRejectsOpaqueProcessor(t *testing.T) {
	t.Parallel()
	cs := &completionServer{}
	srv := newServer(t, cs)
	_, err := srv.GenerateNative(context.Background(), &model.NativeRequest{
		Prompts:   []string{"a"},
		Sampler:   samplers.Default(),
		Processor: opaqueProcessor{},
	})
	require.ErrorIs(t, err, ErrProcessorNotPortable)
	assert.Empty(t, cs.bodies)
}

func TestServerHTTPError(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &completionServer{status: http.StatusBadRequest})
	_, err := srv.GenerateNative(context.Background(), &model.NativeRequest{Prompts: []string{"a"}, Sampler: samplers.Default()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()
	_, err := NewServer(ServerConfig{Model: "m", Tokenizer: newVocab(t)})
	require.Error(t, err)
	_, err = NewServer(ServerConfig{BaseURL: "http://x", Tokenizer: newVocab(t)})
	require.Error(t, err)
	_, err = NewServer(ServerConfig{BaseURL: "http://x", Model: "m"})
	require.True(t, errors.Is(err, model.ErrNilHandle))
}

type nilTokenizerEngine struct{ *Server }

func (nilTokenizerEngine) GetTokenizer() tokenizer.Tokenizer { return nil }

func TestRegisteredBuilder(t *testing.T) {
	t.Parallel()
	build, err := processors.Lookup(model.KindVLLM.String())
	require.NoError(t, err)

	srv := newServer(t, &completionServer{})
	proc, err := build(`[0-2]+`, srv)
	require.NoError(t, err)
	assert.IsType(t, &processors.Regex{}, proc)

	_, err = build(`[0-2]+`, newVocab(t))
	require.ErrorContains(t, err, "not a vLLM engine")

	_, err = build(`[0-2]+`, nilTokenizerEngine{srv})
	require.ErrorContains(t, err, "no tokenizer")
}
