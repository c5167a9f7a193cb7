package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/boost/internal/fsm"
	"github.com/urfave/cli/v3"
)

func checkCmd() *cli.Command {
	var (
		pattern string
		asJSON  bool
	)

	return &cli.Command{
		Name:      "check",
		Usage:     "Compile a pattern against a vocabulary and print automaton statistics",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
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
				Name:        "pattern",
				Aliases:     []string{"p"},
				Usage:       "regular expression to compile (or pass it as the argument)",
				Destination: &pattern,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print statistics as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			if pattern == "" {
				pattern = cmd.Args().First()
			}
			if pattern == "" {
				return fmt.Errorf("check: a pattern is required")
			}
			vocab, err := loadVocab()
			if err != nil {
				return fmt.Errorf("load vocabulary: %w", err)
			}
			guide, err := fsm.NewRegexGuide(pattern, vocab)
			if err != nil {
				return err
			}
			st := guide.Stats()
			if asJSON {
				return writeJSON(os.Stdout, st)
			}
			fmt.Printf("pattern:     %s\n", guide.Pattern())
			fmt.Printf("vocabulary:  %d\n", st.Vocabulary)
			fmt.Printf("states:      %d\n", st.States)
			fmt.Printf("accepting:   %d\n", st.Accepting)
			fmt.Printf("transitions: %d\n", st.Transitions)
			first := guide.Instruction(guide.Initial()).Tokens
			fmt.Printf("first step:  %d tokens allowed\n", len(first))
			return nil
		},
	}
}
