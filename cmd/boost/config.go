package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envBoostConfig = "BOOST_CONFIG"

// Config represents the boost configuration file (~/.config/boost/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Backend   string `yaml:"backend"`
	Vocab     string `yaml:"vocab"`
	EOS       string `yaml:"eos"`
	ModelName string `yaml:"model_name"`
	BaseURL   string `yaml:"base_url"`
	Strict    *bool  `yaml:"strict"`

	// Sampling defaults
	Sampler       string   `yaml:"sampler"`
	Temperature   *float64 `yaml:"temperature"`
	TopK          *int64   `yaml:"top_k"`
	TopP          *float64 `yaml:"top_p"`
	MinP          *float64 `yaml:"min_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`
	Samples       *int64   `yaml:"samples"`
	Seed          *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := strings.TrimSpace(os.Getenv(envBoostConfig)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "boost", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyModelConfig applies config file defaults to model selection variables
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	if cfg.EOS != "" && !c.IsSet("eos") {
		eosToken = cfg.EOS
	}
	if cfg.ModelName != "" && !c.IsSet("model-name") {
		modelName = cfg.ModelName
	}
	if cfg.BaseURL != "" && !c.IsSet("base-url") {
		baseURL = cfg.BaseURL
	}
	if cfg.Strict != nil && !c.IsSet("strict") {
		strict = *cfg.Strict
	}
}

func applySamplerConfig(c *cli.Command, cfg Config) {
	if cfg.Sampler != "" && !c.IsSet("sampler") {
		samplerName = cfg.Sampler
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	if cfg.MinP != nil && !c.IsSet("min-p") {
		minP = *cfg.MinP
	}
	if cfg.RepeatPenalty != nil && !c.IsSet("repeat-penalty") {
		repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.Samples != nil && !c.IsSet("samples") {
		samples = *cfg.Samples
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
