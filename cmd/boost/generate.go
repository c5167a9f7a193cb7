package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/generate"
	"github.com/samcharles93/boost/internal/logger"
	"github.com/urfave/cli/v3"
)

func generateCmd() *cli.Command {
	var (
		pattern   string
		prompts   []string
		maxTokens int64
		stop      []string
		stream    bool
		asJSON    bool
	)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate text constrained to a regular expression",
		ArgsUsage: "[prompt...]",
		Flags: append(append(commonModelFlags(), samplerFlags()...),
			&cli.StringFlag{
				Name:        "pattern",
				Aliases:     []string{"p"},
				Usage:       "regular expression every output must match",
				Required:    true,
				Destination: &pattern,
			},
			&cli.StringSliceFlag{
				Name:        "prompt",
				Usage:       "prompt text (repeatable; positional args are also prompts)",
				Destination: &prompts,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Usage:       "token limit per sequence",
				Value:       generate.DefaultMaxTokens,
				Destination: &maxTokens,
			},
			&cli.StringSliceFlag{
				Name:        "stop",
				Usage:       "stop string (repeatable)",
				Destination: &stop,
			},
			&cli.BoolFlag{
				Name:        "stream",
				Usage:       "print text as it is produced",
				Destination: &stream,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applySamplerConfig(cmd, cfg)

			all := append(append([]string(nil), prompts...), cmd.Args().Slice()...)
			if len(all) == 0 {
				all = []string{""}
			}

			m, err := buildVariant()
			if err != nil {
				return err
			}
			opts, err := boostOptions()
			if err != nil {
				return err
			}
			pipeline, err := boost.Boost(m, pattern, append(opts, boost.WithLogger(log))...)
			if err != nil {
				return err
			}
			log.Debug("pipeline ready", "backend", m.Kind().String(), "pipeline", pipeline.ID())

			req := &generate.Request{Prompts: all, MaxTokens: int(maxTokens), StopAt: stop}
			var sf generate.StreamFunc
			if stream && !asJSON {
				sf = streamTo(os.Stdout)
			}
			res, err := pipeline.Generate(ctx, req, sf)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, res)
			}
			if stream {
				_, _ = fmt.Fprintln(os.Stdout)
			} else {
				for _, text := range res.Texts {
					_, _ = fmt.Fprintln(os.Stdout, text)
				}
			}
			log.Info("generation finished",
				"sequences", len(res.Texts),
				"tokens", res.Stats.TokensGenerated,
				"duration", res.Stats.Duration,
				"tps", fmt.Sprintf("%.2f", res.Stats.TPS),
			)
			return nil
		},
	}
}

// streamTo prints each sequence on its own line.
func streamTo(w io.Writer) generate.StreamFunc {
	current := -1
	return func(seq int, text string) {
		if seq != current {
			if current >= 0 {
				_, _ = fmt.Fprintln(w)
			}
			current = seq
		}
		_, _ = io.WriteString(w, text)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
