package vllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/samcharles93/boost/internal/tokenizer"
)

// ErrProcessorNotPortable is returned when a request carries a processor
// that cannot be expressed as a server-side guided decoding parameter.
var ErrProcessorNotPortable = errors.New("processor cannot be sent to a vLLM server")

// patterned is satisfied by processors that enforce a regular expression.
type patterned interface {
	Pattern() string
}

// ServerConfig describes a vLLM OpenAI-compatible endpoint.
type ServerConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Tokenizer  tokenizer.Tokenizer
	MaxRetries int
	HTTPClient *http.Client
}

// Server is a VLLMEngine that runs generation on a remote vLLM deployment.
// A regex processor is forwarded as the guided_regex extension so the
// server's own decode loop enforces it.
type Server struct {
	client openai.Client
	model  string
	tok    tokenizer.Tokenizer
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("vllm server: base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("vllm server: model name is required")
	}
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("vllm server: %w", model.ErrNilHandle)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "EMPTY"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Server{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		tok:    cfg.Tokenizer,
	}, nil
}

func (s *Server) GetTokenizer() tokenizer.Tokenizer { return s.tok }

// GenerateNative issues one completions request for all prompts. Results
// are prompt-major, Samples per prompt.
func (s *Server) GenerateNative(ctx context.Context, req *model.NativeRequest) ([]string, error) {
	var opts []option.RequestOption
	switch p := req.Processor.(type) {
	case nil:
	case patterned:
		opts = append(opts, option.WithJSONSet("guided_regex", p.Pattern()))
	default:
		return nil, fmt.Errorf("%w: %T", ErrProcessorNotPortable, p)
	}

	n := max(req.Sampler.Samples, 1)
	params := openai.CompletionNewParams{
		Model:     openai.CompletionNewParamsModel(s.model),
		Prompt:    openai.CompletionNewParamsPromptUnion{OfArrayOfStrings: req.Prompts},
		MaxTokens: openai.Int(int64(req.MaxTokens)),
		N:         openai.Int(int64(n)),
	}
	if req.Sampler.Seeded() {
		params.Seed = openai.Int(req.Sampler.Seed)
	}
	if len(req.StopAt) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: req.StopAt}
	}
	opts = append(opts, samplingOptions(req.Sampler, &params)...)

	resp, err := s.client.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(req.Prompts)*n)
	for _, c := range resp.Choices {
		if c.Index < 0 || int(c.Index) >= len(texts) {
			return nil, fmt.Errorf("vllm server: choice index %d out of range", c.Index)
		}
		texts[c.Index] = c.Text
	}
	logger.FromContext(ctx).Debug("vllm completion",
		"model", s.model,
		"choices", len(resp.Choices),
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return texts, nil
}

// samplingOptions maps cfg onto the request. vLLM accepts top_k, min_p and
// repetition_penalty as extensions to the completions schema.
func samplingOptions(cfg samplers.Config, params *openai.CompletionNewParams) []option.RequestOption {
	if cfg.Name == samplers.NameGreedy {
		params.Temperature = openai.Float(0)
		return nil
	}
	params.Temperature = openai.Float(float64(cfg.Temperature))
	if cfg.TopP > 0 {
		params.TopP = openai.Float(float64(cfg.TopP))
	}
	var opts []option.RequestOption
	if cfg.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", cfg.TopK))
	}
	if cfg.MinP > 0 {
		opts = append(opts, option.WithJSONSet("min_p", cfg.MinP))
	}
	if cfg.RepeatPenalty > 0 && cfg.RepeatPenalty != 1 {
		opts = append(opts, option.WithJSONSet("repetition_penalty", cfg.RepeatPenalty))
	}
	return opts
}

var _ model.VLLMEngine = (*Server)(nil)
