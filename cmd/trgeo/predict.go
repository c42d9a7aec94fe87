package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hyeh20/protein-sequence/internal/ensemble"
	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/tensor"
	"github.com/hyeh20/protein-sequence/internal/weights"
)

func predictCmd() *cli.Command {
	var (
		input  string
		output string
	)

	return &cli.Command{
		Name:  "predict",
		Usage: "Run the geometry ensemble over a pairwise feature map",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "feature bundle (.wbf with a 'features' tensor [1, 526, L, L])",
				Destination: &input,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output bundle path",
				Destination: &output,
				Required:    true,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx
			applyModelConfig(c, LoadConfig())
			log := buildLogger()

			x, err := loadFeatures(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("features loaded", "path", input, "length", x.H)

			var prov *weights.Provisioner
			if weightsDir != "" {
				prov = weights.NewProvisioner(weightsDir, log)
			} else {
				log.Warn("no weights directory configured, members run with initial parameters")
			}
			ens, err := ensemble.New(model.Config{Blocks: int(blocks), Decoder: true}, modelIDs, prov, log)
			if ens == nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err != nil {
				log.Warn("running with a partial ensemble", "error", err)
			}

			preds, err := ens.Forward(x)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: forward: %v", err), 1)
			}

			members := ens.Members()
			bundle := make([]weights.BundleTensor, 0, len(preds)*4)
			for i, p := range preds {
				id := members[i].ID
				bundle = append(bundle,
					outputTensor(id+"/dist", p.Dist),
					outputTensor(id+"/theta", p.Theta),
					outputTensor(id+"/phi", p.Phi),
					outputTensor(id+"/omega", p.Omega),
				)
			}
			if err := weights.WriteBundle(output, bundle); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			log.Info("predictions written", "path", output, "members", len(preds))
			return nil
		},
	}
}

func loadFeatures(path string) (*tensor.Tensor, error) {
	b, err := weights.OpenBundle(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = b.Close() }()

	data, shape, err := b.Tensor("features")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(shape) != 4 || shape[0] != 1 || shape[1] != model.InputChannels || shape[2] != shape[3] {
		return nil, fmt.Errorf("%s: features must be [1, %d, L, L], got %v", path, model.InputChannels, shape)
	}
	return tensor.NewFromData(shape[0], shape[1], shape[2], shape[3], data), nil
}

func outputTensor(name string, t *tensor.Tensor) weights.BundleTensor {
	return weights.BundleTensor{Name: name, Shape: t.Shape(), Data: t.Data}
}
