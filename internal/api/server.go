// Package api serves constrained generation over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/generate"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/samplers"
)

const headerRequestID = "X-Request-Id"

type Config struct {
	// Model is the variant every request is boosted against.
	Model model.Variant
	// Sampler is the base configuration request fields override.
	Sampler samplers.Config
	// Options are passed to every boost call, after the per-request sampler.
	Options []boost.Option
	Log     logger.Logger
}

// Server compiles the request's pattern against the configured model on
// every call. Generation is serialised because local runtimes carry
// per-sequence state.
type Server struct {
	model   model.Variant
	sampler samplers.Config
	opts    []boost.Option
	log     logger.Logger
	clock   func() time.Time

	mu sync.Mutex
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	sampler := cfg.Sampler
	if sampler.Name == "" {
		sampler = samplers.Default()
	}
	return &Server{
		model:   cfg.Model,
		sampler: sampler,
		opts:    append([]boost.Option{boost.WithLogger(log)}, cfg.Options...),
		log:     log,
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/backends", s.handleBackends)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	id := requestID(c)
	if s.model == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "no model configured", "")
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("decode request: %v", err))
	}
	genReq, err := s.toGenerateRequest(&req)
	if err != nil {
		return writeFailure(c, err)
	}

	log := s.log.With("request_id", id)
	opts := append([]boost.Option{boost.WithSampler(s.samplerFor(&req))}, s.opts...)
	opts = append(opts, boost.WithLogger(log))

	pipeline, err := boost.Boost(s.model, req.Pattern, opts...)
	if err != nil {
		log.Info("boost rejected", "backend", s.model.Kind().String(), "error", err)
		return writeFailure(c, err)
	}

	ctx := logger.WithContext(c.Request().Context(), log)
	res, err := s.generate(ctx, pipeline, genReq)
	if err != nil {
		log.Error("generation failed", "pipeline", pipeline.ID(), "error", err)
		return writeFailure(c, err)
	}

	return c.JSON(http.StatusOK, GenerateResponse{
		ID:       "gen-" + id,
		Object:   "generation",
		Created:  s.clock().Unix(),
		Backend:  s.model.Kind().String(),
		Pattern:  req.Pattern,
		Texts:    res.Texts,
		Complete: res.Complete,
		Usage: Usage{
			TokensGenerated: res.Stats.TokensGenerated,
			DurationMS:      res.Stats.Duration.Milliseconds(),
			TokensPerSecond: res.Stats.TPS,
		},
	})
}

func (s *Server) generate(ctx context.Context, p generate.Pipeline, req *generate.Request) (*generate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return p.Generate(ctx, req, nil)
}

func (s *Server) handleBackends(c *echo.Context) error {
	resp := BackendsResponse{Object: "list"}
	if s.model != nil {
		resp.Current = s.model.Kind().String()
	}
	for _, b := range boost.NewFactory(s.opts...).Backends() {
		resp.Data = append(resp.Data, BackendStatus{Name: b.Name, Path: string(b.Path), Available: b.Available})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) toGenerateRequest(req *GenerateRequest) (*generate.Request, error) {
	if req.Pattern == "" {
		return nil, newInvalidRequest("pattern is required")
	}
	prompts := req.Prompts
	if req.Prompt != "" {
		if len(prompts) > 0 {
			return nil, newInvalidRequest("prompt and prompts are mutually exclusive")
		}
		prompts = []string{req.Prompt}
	}
	if len(prompts) == 0 {
		return nil, newInvalidRequest("at least one prompt is required")
	}
	if req.MaxTokens < 0 {
		return nil, newInvalidRequest("max_tokens must be >= 0")
	}
	return &generate.Request{
		Prompts:   prompts,
		MaxTokens: req.MaxTokens,
		StopAt:    req.Stop,
		Seed:      req.Seed,
	}, nil
}

// samplerFor overlays the request's sampler fields on the server default.
// Validation is left to boost so the backend decides first whether any
// sampler can apply.
func (s *Server) samplerFor(req *GenerateRequest) samplers.Config {
	cfg := s.sampler
	if name := strings.ToLower(strings.TrimSpace(req.Sampler)); name != "" {
		cfg.Name = samplers.Name(name)
		if cfg.Name == samplers.NameGreedy {
			cfg.Temperature = 0
		}
	}
	if req.Samples != 0 {
		cfg.Samples = req.Samples
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopK != 0 {
		cfg.TopK = req.TopK
	}
	if req.TopP != 0 {
		cfg.TopP = req.TopP
	}
	if req.MinP != 0 {
		cfg.MinP = req.MinP
	}
	if req.RepeatPenalty != 0 {
		cfg.RepeatPenalty = req.RepeatPenalty
	}
	return cfg
}

func requestID(c *echo.Context) string {
	id := c.Request().Header.Get(headerRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Response().Header().Set(headerRequestID, id)
	return id
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
