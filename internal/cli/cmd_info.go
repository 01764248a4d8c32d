package cli

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/imagestack"
)

type infoOutput struct {
	File        string         `json:"file"`
	Shape       []int          `json:"shape"`
	DType       string         `json:"dtype"`
	Metadata    bool           `json:"metadata"`
	Rows        int            `json:"rows"`
	Schema      any            `json:"schema,omitempty"`
	Compression string         `json:"compression"`
	Codec       string         `json:"codec"`
	Size        int64          `json:"size"`
	Recovered   bool           `json:"recovered"`
	Chunks      map[string]int `json:"chunks"`
}

// InfoCmd returns the info command.
func InfoCmd(logger *imagestack.Logger) *Command {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print as JSON")

	return &Command{
		Flags: fs,
		Usage: "info <file> [flags]",
		Short: "Show shape, dtype and metadata layout",
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

			st := s.Stats()
			info := infoOutput{
				File:        path,
				Shape:       s.Shape(),
				DType:       s.DType().String(),
				Metadata:    s.HasMetadata(),
				Rows:        s.MetadataLen(),
				Compression: st.Compression.String(),
				Codec:       st.Codec,
				Size:        st.Size,
				Recovered:   st.Recovered,
				Chunks:      make(map[string]int, len(st.Objects)),
			}
			if schema := s.Schema(); schema != nil {
				info.Schema = schema
			}
			for _, obj := range st.Objects {
				info.Chunks[obj.Name] = obj.Chunks
			}

			if *asJSON {
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				o.Println(string(out))
				return nil
			}

			o.Printf("file:        %s\n", info.File)
			o.Printf("shape:       %v\n", info.Shape)
			o.Printf("dtype:       %s\n", info.DType)
			if info.Metadata {
				o.Printf("metadata:    %d rows %s\n", info.Rows, s.Schema())
			} else {
				o.Printf("metadata:    none\n")
			}
			o.Printf("compression: %s\n", info.Compression)
			o.Printf("codec:       %s\n", info.Codec)
			o.Printf("size:        %s (%d bytes)\n", humanize.IBytes(uint64(info.Size)), info.Size)
			if info.Recovered {
				o.Printf("recovered:   true (last flush was incomplete)\n")
			}
			return nil
		},
	}
}
