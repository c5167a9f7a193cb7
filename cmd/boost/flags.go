package main

import (
	"github.com/samcharles93/boost/internal/samplers"
	"github.com/urfave/cli/v3"
)

var (
	backend         string
	vocabPath       string
	tokenizerConfig string
	eosToken        string
	modelName       string
	baseURL         string
	apiKey          string
	toyHidden       int64
	toySeed         int64
	strict          bool

	samplerName   string
	temperature   float64
	topK          int64
	topP          float64
	minP          float64
	repeatPenalty float64
	samples       int64
	seed          int64

	logLevel  string
	logFormat string
	debug     bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "model backend (local, vllm, openai)",
			Value:       "local",
			Destination: &backend,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to a tokenizer.json or flat vocab JSON (default: built-in demo vocabulary)",
			Destination: &vocabPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "path to tokenizer_config.json for a BPE --vocab",
			Destination: &tokenizerConfig,
		},
		&cli.StringFlag{
			Name:        "eos",
			Usage:       "end-of-sequence token text",
			Value:       "</s>",
			Destination: &eosToken,
		},
		&cli.StringFlag{
			Name:        "model-name",
			Usage:       "served model name for vllm and openai backends",
			Destination: &modelName,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "API base URL for vllm and openai backends",
			Sources:     cli.EnvVars("BOOST_BASE_URL"),
			Destination: &baseURL,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "API key for vllm and openai backends",
			Sources:     cli.EnvVars("BOOST_API_KEY", "OPENAI_API_KEY"),
			Destination: &apiKey,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size of the local demo model",
			Value:       32,
			Destination: &toyHidden,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "weight seed of the local demo model",
			Value:       1,
			Destination: &toySeed,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "reject model types that are not a known backend",
			Destination: &strict,
		},
	}
}

func samplerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sampler",
			Usage:       "sampling strategy (multinomial, greedy)",
			Value:       string(samplers.NameMultinomial),
			Destination: &samplerName,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature",
			Value:       1,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "top-k sampling (0 = off)",
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "top-p",
			Usage:       "top-p sampling (0 = off)",
			Destination: &topP,
		},
		&cli.FloatFlag{
			Name:        "min-p",
			Usage:       "min-p sampling (0 = off)",
			Destination: &minP,
		},
		&cli.FloatFlag{
			Name:        "repeat-penalty",
			Usage:       "repeat penalty (1 = off)",
			Value:       1,
			Destination: &repeatPenalty,
		},
		&cli.Int64Flag{
			Name:        "samples",
			Aliases:     []string{"n"},
			Usage:       "sequences to draw per prompt",
			Value:       1,
			Destination: &samples,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (default -1 = random)",
			Value:       samplers.RandomSeed,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func samplerConfig() (samplers.Config, error) {
	return samplers.Parse(samplerName,
		samplers.WithTemperature(float32(temperature)),
		samplers.WithTopK(int(topK)),
		samplers.WithTopP(float32(topP)),
		samplers.WithMinP(float32(minP)),
		samplers.WithRepeatPenalty(float32(repeatPenalty)),
		samplers.WithSamples(int(samples)),
		samplers.WithSeed(seed),
	)
}
