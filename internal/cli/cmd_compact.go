package cli

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/imagestack"
	"github.com/hupe1980/imagestack/container"
)

// CompactCmd returns the compact command.
func CompactCmd(logger *imagestack.Logger) *Command {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	compression := fs.String("compression", "", "Re-encode chunks: none|lz4|zstd (default: keep)")
	ioLimit := fs.String("io-limit", "0", "Throttle the rewrite to this many bytes per second, e.g. 50MB (0: unlimited)")
	buffer := fs.String("buffer", "64MiB", "Memory for images read ahead of the writer")

	return &Command{
		Flags: fs,
		Usage: "compact <file> [flags]",
		Short: "Rewrite a stack without superseded data",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			path, err := fileArg(args)
			if err != nil {
				return err
			}
			bufBytes, err := parseBytes("buffer", *buffer)
			if err != nil {
				return err
			}
			ioBytes, err := parseBytes("io-limit", *ioLimit)
			if err != nil {
				return err
			}
			opts := []imagestack.Option{
				imagestack.WithLogger(logger),
				imagestack.WithCompactionBuffer(bufBytes),
				imagestack.WithCompactionIOLimit(ioBytes),
			}
			if fs.Changed("compression") {
				comp, err := container.ParseCompression(*compression)
				if err != nil {
					return err
				}
				opts = append(opts, imagestack.WithCompression(comp))
			}

			before, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := imagestack.CompactContext(ctx, path, opts...); err != nil {
				return err
			}
			after, err := os.Stat(path)
			if err != nil {
				return err
			}
			o.Printf("%s: %s -> %s (%d -> %d bytes)\n", path,
				humanize.IBytes(uint64(before.Size())), humanize.IBytes(uint64(after.Size())),
				before.Size(), after.Size())
			return nil
		},
	}
}

// parseBytes accepts sizes such as "512", "64MiB" or "1.5 GB".
func parseBytes(name, v string) (int64, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, v, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid --%s %q: too large", name, v)
	}
	return int64(n), nil
}
