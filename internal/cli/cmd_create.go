package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/hupe1980/imagestack"
	"github.com/hupe1980/imagestack/container"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
	"github.com/hupe1980/imagestack/testutil"
)

var errInvalidShape = errors.New("invalid shape")

// CreateCmd returns the create command.
func CreateCmd(logger *imagestack.Logger) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	shape := fs.String("shape", "100x200", "Image shape, e.g. 100x200")
	dtype := fs.String("dtype", "float64", "Element type")
	count := fs.IntP("count", "n", 10, "Number of random images to append")
	schemaPath := fs.String("schema", "", "Metadata schema file (JSONC)")
	compression := fs.String("compression", "none", "Chunk compression: none|lz4|zstd")
	seed := fs.Int64("seed", 1, "Random seed")
	appendMode := fs.BoolP("append", "a", false, "Append to an existing stack")

	return &Command{
		Flags: fs,
		Usage: "create <file> [flags]",
		Short: "Write a stack of random images",
		Long: `Write a stack of random images, with random metadata when a schema is given.

The schema file maps field names to column types:

  {
    // seconds
    "exp_time": "int32",
    "some_string": "string(20)",
  }`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			path, err := fileArg(args)
			if err != nil {
				return err
			}
			if *count < 0 {
				return fmt.Errorf("count must not be negative: %d", *count)
			}
			comp, err := container.ParseCompression(*compression)
			if err != nil {
				return err
			}

			opts := []imagestack.Option{
				imagestack.WithLogger(logger),
				imagestack.WithCompression(comp),
			}

			var s *imagestack.ImageStack
			if *appendMode {
				s, err = imagestack.Open(path, append(opts, imagestack.WithMode(imagestack.ModeAppend))...)
			} else {
				var template *ndarray.Array
				template, err = parseTemplate(*dtype, *shape)
				if err != nil {
					return err
				}
				if *schemaPath != "" {
					schema, err := loadSchema(*schemaPath)
					if err != nil {
						return err
					}
					opts = append(opts, imagestack.WithSchema(schema))
				}
				s, err = imagestack.Create(path, template, opts...)
			}
			if err != nil {
				return err
			}
			defer s.Close()

			rng := testutil.NewRNG(*seed)
			for range *count {
				var md metadata.Record
				if schema := s.Schema(); schema != nil {
					md = rng.Record(schema)
				}
				if err := s.AddImage(rng.Image(s.DType(), s.ItemShape()...), md); err != nil {
					return err
				}
			}
			if err := s.Close(); err != nil {
				return err
			}

			o.Printf("%s: %d images of %s%v\n", path, s.Len(), s.DType(), s.ItemShape())
			return nil
		},
	}
}

func parseTemplate(dtype, shape string) (*ndarray.Array, error) {
	dt, err := ndarray.ParseDType(dtype)
	if err != nil {
		return nil, err
	}
	dims, err := parseShape(shape)
	if err != nil {
		return nil, err
	}
	return ndarray.Zeros(dt, dims...)
}

// parseShape reads shapes written as "100x200" or "100,200".
func parseShape(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' || r == 'X' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q", errInvalidShape, s)
	}
	dims := make([]int, len(fields))
	for i, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %q", errInvalidShape, s)
		}
		dims[i] = d
	}
	return dims, nil
}

func loadSchema(path string) (*metadata.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}
	var schema metadata.Schema
	if err := schema.UnmarshalJSON(standardized); err != nil {
		return nil, fmt.Errorf("invalid schema in %s: %w", path, err)
	}
	return &schema, nil
}
