package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hyeh20/protein-sequence/pkg/wbf"
)

func inspectCmd() *cli.Command {
	var (
		path         string
		showSections bool
		tensorLimit  int
		tensorFilter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a .wbf weight bundle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .wbf file",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{Name: "sections", Usage: "show section directory", Destination: &showSections},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx

			stat, err := os.Stat(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", path, err), 1)
			}

			f, err := wbf.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open wbf: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("WBF Inspect: %s\n", path)
			fmt.Printf("File: %s (%s)\n", filepath.Base(path), formatBytes(uint64(stat.Size())))
			fmt.Printf("WBF Header: v%d.%d sections=%d\n",
				f.Header.Major, f.Header.Minor, f.Header.SectionCount)

			if showSections {
				section("Sections")
				for _, s := range f.Sections {
					fmt.Printf("%-16s off=%-10d size=%s\n",
						sectionTypeName(s.Type), s.Offset, formatBytes(s.Size))
				}
			}

			indexSec := f.Section(wbf.SectionTensorIndex)
			if indexSec == nil {
				fmt.Println("(no tensor index section)")
				return nil
			}
			idx, err := wbf.ParseTensorIndex(f.SectionData(indexSec))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: tensor index: %v", err), 1)
			}

			section("Tensors")
			var total uint64
			printed := 0
			for _, rec := range idx.Records() {
				total += rec.DataSize
				if tensorFilter != "" && !strings.Contains(rec.Name, tensorFilter) {
					continue
				}
				if tensorLimit > 0 && printed >= tensorLimit {
					continue
				}
				fmt.Printf("%s  dtype=%s shape=%s size=%s\n",
					rec.Name, dtypeName(rec.DType), formatShape(rec.Shape), formatBytes(rec.DataSize))
				printed++
			}
			if tensorLimit > 0 && printed < idx.Count() {
				fmt.Printf("... (%d shown of %d)\n", printed, idx.Count())
			}
			fmt.Printf("\ntensors=%d data_size=%s\n", idx.Count(), formatBytes(total))
			return nil
		},
	}
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func formatShape(shape []uint64) string {
	if len(shape) == 0 {
		return "[]"
	}
	parts := make([]string, len(shape))
	for i, v := range shape {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func sectionTypeName(t wbf.SectionType) string {
	switch t {
	case wbf.SectionTensorIndex:
		return "TensorIndex"
	case wbf.SectionTensorData:
		return "TensorData"
	default:
		return fmt.Sprintf("Section0x%04x", uint32(t))
	}
}

func dtypeName(dt wbf.DType) string {
	switch dt {
	case wbf.DTypeF32:
		return "f32"
	case wbf.DTypeF64:
		return "f64"
	default:
		return fmt.Sprintf("dtype_%d", dt)
	}
}
