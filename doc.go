// Package imagestack stores a growable stack of same-shaped images in a
// single file, optionally paired with one metadata record per image.
//
// A stack is an append-only image array plus an optional fixed-schema
// metadata table, kept in one container file (see package container).
// Appends are atomic across both objects: either the image and its row are
// stored, or neither is.
//
// # Quick Start
//
// Create a stack from a template image. Only its shape and dtype are used:
//
//	template, _ := ndarray.Zeros(ndarray.Float64, 100, 200)
//	schema := metadata.MustNewSchema(map[string]metadata.Column{
//	    "exp_time":    metadata.Int32Col(),
//	    "some_string": metadata.StringCol(20),
//	})
//	s, err := imagestack.Create("stack.isk", template, imagestack.WithSchema(schema))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.AddImage(img, metadata.Record{
//	    "exp_time":    metadata.Int(7),
//	    "some_string": metadata.String("dark frame"),
//	})
//
// Reopen it later, read-only by default:
//
//	s, err := imagestack.Open("stack.isk")
//	img, _ := s.At(-1)
//	batch, _ := s.Slice(0, 10)
//	rec, _ := s.Metadata(3)
//
// # Alignment
//
// Image i corresponds to metadata row i. With the default AlignStrict,
// AddImage refuses calls that would break this: an image without metadata
// on a stack with a table (ErrMetadataRequired), or metadata on a stack
// without one (ErrNoMetadataTable). AlignLenient accepts both, logs a
// warning and reports a Misalignment to the metrics collector.
//
// # Durability
//
// Appends are buffered and become durable on Flush or Close. After a crash
// the file opens at its last completed flush.
//
// # Selection
//
// Where evaluates a metadata.FilterSet against every row and returns a
// roaring bitmap of matching indices, which Mask turns into images:
//
//	sel, _ := s.Where(metadata.NewFilterSet(metadata.Gte("exp_time", metadata.Int(5))))
//	imgs, _ := s.Mask(sel)
//
// # Compaction
//
// Every flush appends a new directory, so files written in many short
// sessions carry superseded directories and partly filled chunks. Compact
// rewrites the file next to the original and swaps it in atomically:
//
//	err := imagestack.CompactContext(ctx, "stack.isk",
//	    imagestack.WithCompression(imagestack.CompressionZSTD),
//	    imagestack.WithCompactionIOLimit(50<<20),
//	)
package imagestack
