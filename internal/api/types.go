package api

// GenerateRequest is the body of POST /v1/generate. Prompt is shorthand for
// a single-element Prompts.
type GenerateRequest struct {
	Pattern       string   `json:"pattern"`
	Prompt        string   `json:"prompt,omitempty"`
	Prompts       []string `json:"prompts,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Sampler       string   `json:"sampler,omitempty"`
	Samples       int      `json:"samples,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	MinP          float32  `json:"min_p,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
}

type GenerateResponse struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Backend  string   `json:"backend"`
	Pattern  string   `json:"pattern"`
	Texts    []string `json:"texts"`
	Complete []bool   `json:"complete"`
	Usage    Usage    `json:"usage"`
}

type Usage struct {
	TokensGenerated int     `json:"tokens_generated"`
	DurationMS      int64   `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type BackendsResponse struct {
	Object  string          `json:"object"`
	Current string          `json:"current"`
	Data    []BackendStatus `json:"data"`
}

type BackendStatus struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}
