package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/samcharles93/boost/internal/integrations/llamacpp"
	_ "github.com/samcharles93/boost/internal/integrations/mlx"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:   "boost",
		Usage:  "Regex-constrained text generation across model backends",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			generateCmd(),
			checkCmd(),
			backendsCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
