package cli

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/imagestack"
	"github.com/hupe1980/imagestack/metadata"
)

type dumpLine struct {
	Index    int             `json:"index"`
	Sum      float64         `json:"sum"`
	Metadata metadata.Record `json:"metadata,omitempty"`
}

// DumpCmd returns the dump command.
func DumpCmd(logger *imagestack.Logger) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	indices := fs.IntSliceP("index", "i", nil, "Image index to dump (repeatable, negative counts from the end)")
	where := fs.StringArrayP("where", "w", nil, "Metadata filter such as exp_time>=5 (repeatable, all must match)")

	return &Command{
		Flags: fs,
		Usage: "dump <file> [flags]",
		Short: "Print the pixel sum and metadata of images as JSON lines",
		Exec: func(_ context.Context, o *IO, args []string) error {
			path, err := fileArg(args)
			if err != nil {
				return err
			}
			s, err := imagestack.Open(path, imagestack.WithLogger(logger))
			if err != nil {
				return err
			}
			defer s.Close()

			selected, err := selectIndices(s, *indices, *where)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(o.Out())
			for _, i := range selected {
				img, err := s.At(i)
				if err != nil {
					return err
				}
				if i < 0 {
					i += s.Len()
				}
				line := dumpLine{Index: i, Sum: img.Sum()}
				if s.HasMetadata() && i < s.MetadataLen() {
					if line.Metadata, err = s.Metadata(i); err != nil {
						return err
					}
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func selectIndices(s *imagestack.ImageStack, indices []int, where []string) ([]int, error) {
	if len(where) == 0 {
		if len(indices) > 0 {
			return indices, nil
		}
		all := make([]int, s.Len())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	filters := make([]metadata.Filter, 0, len(where))
	for _, expr := range where {
		f, err := metadata.ParseFilter(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	sel, err := s.Where(metadata.NewFilterSet(filters...))
	if err != nil {
		return nil, err
	}
	if len(indices) > 0 {
		restrict := roaring.New()
		for _, i := range indices {
			if i < 0 {
				i += s.Len()
			}
			if i >= 0 {
				restrict.Add(uint32(i))
			}
		}
		sel.And(restrict)
	}

	out := make([]int, 0, sel.GetCardinality())
	it := sel.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out, nil
}
