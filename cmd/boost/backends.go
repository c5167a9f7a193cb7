package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/samcharles93/boost/internal/boost"
	"github.com/urfave/cli/v3"
)

func backendsCmd() *cli.Command {
	return &cli.Command{
		Name:  "backends",
		Usage: "List model backends and how constraints are applied to each",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "BACKEND\tPATH\tAVAILABLE")
			for _, b := range boost.NewFactory().Backends() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\n", b.Name, b.Path, b.Available)
			}
			return tw.Flush()
		},
	}
}
