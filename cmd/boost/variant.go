package main

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/integrations/vllm"
	"github.com/samcharles93/boost/internal/model"
	"github.com/samcharles93/boost/internal/tokenizer"
	"github.com/samcharles93/boost/internal/toy"
)

func loadVocab() (tokenizer.Sized, error) {
	if vocabPath == "" {
		vocab, err := tokenizer.NewVocab(toy.DefaultTokens(), eosToken)
		if err != nil {
			return nil, err
		}
		return vocab, nil
	}
	return tokenizer.Load(vocabPath, tokenizerConfig, eosToken)
}

// buildVariant constructs the model handle selected by --backend.
// llamacpp and mlx handles come from in-process runtimes and are only
// reachable through the library API.
func buildVariant() (model.Variant, error) {
	kind, err := model.ParseKind(backend)
	if err != nil {
		return nil, err
	}
	vocab, err := loadVocab()
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	switch kind {
	case model.KindLocal:
		return toy.NewLocalFromVocab(vocab, int(toyHidden), toySeed)
	case model.KindVLLM:
		if baseURL == "" || modelName == "" {
			return nil, errors.New("vllm backend requires --base-url and --model-name")
		}
		srv, err := vllm.NewServer(vllm.ServerConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      modelName,
			Tokenizer:  vocab,
			MaxRetries: 2,
		})
		if err != nil {
			return nil, err
		}
		return model.NewVLLM(srv)
	case model.KindOpenAI:
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		name := modelName
		if name == "" {
			name = "gpt-4o-mini"
		}
		return model.NewOpenAI(openai.NewClient(opts...), name, vocab), nil
	default:
		return nil, fmt.Errorf("backend %s is not available from the command line", kind)
	}
}

func boostOptions() ([]boost.Option, error) {
	cfg, err := samplerConfig()
	if err != nil {
		return nil, err
	}
	return []boost.Option{boost.WithSampler(cfg), boost.WithStrict(strict)}, nil
}
