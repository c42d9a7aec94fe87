package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/weights"
)

func convertCmd() *cli.Command {
	var (
		foreignPath string
		output      string
	)

	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a foreign checkpoint to a native .wbf bundle",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "foreign",
				Aliases:     []string{"f"},
				Usage:       "path to foreign checkpoint",
				Destination: &foreignPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .wbf path",
				Destination: &output,
				Required:    true,
			},
			&cli.Int64Flag{
				Name:        "blocks",
				Usage:       "residual block count",
				Value:       61,
				Destination: &blocks,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx
			applyModelConfig(c, LoadConfig())
			log := buildLogger()

			ff, err := weights.OpenForeign(foreignPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open foreign: %v", err), 1)
			}

			// The parameter table of a fresh network defines the tensor names
			// and shapes the bundle must provide.
			net := model.New(model.Config{Blocks: int(blocks), Decoder: true})
			params := weights.ParamTable(net.Parameters())

			if err := weights.Convert(ff, output, params); err != nil {
				return cli.Exit(fmt.Sprintf("error: convert: %v", err), 1)
			}
			log.Info("bundle written", "path", output, "tensors", len(params))
			return nil
		},
	}
}
