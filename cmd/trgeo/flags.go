package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hyeh20/protein-sequence/internal/logger"
)

var (
	weightsDir string
	modelIDs   []string
	blocks     int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "weights-dir",
			Aliases:     []string{"w"},
			Usage:       "directory holding .wbf bundles (foreign checkpoints under foreign/)",
			Destination: &weightsDir,
		},
		&cli.StringSliceFlag{
			Name:        "models",
			Usage:       "ensemble member ids (default a..e)",
			Destination: &modelIDs,
		},
		&cli.Int64Flag{
			Name:        "blocks",
			Usage:       "residual block count",
			Value:       61,
			Destination: &blocks,
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
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Default()
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
