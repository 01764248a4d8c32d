// Package metadata provides typed per-image metadata records, the fixed-width
// table schema they are stored with, and filters over them.
//
// # Values and Records
//
// A Record maps field names to typed Values:
//
//	rec := metadata.Record{
//	    "exp_time":    metadata.Int(7),
//	    "some_string": metadata.String("dark frame"),
//	}
//
// Untyped input can be adapted with RecordFromAny.
//
// # Schemas
//
// A Schema is built from named Columns. Fields are laid out sorted by name,
// each with a fixed width, so every row of a table has the same size:
//
//	schema, err := metadata.NewSchema(map[string]metadata.Column{
//	    "exp_time":    metadata.Int32Col(),
//	    "some_string": metadata.StringCol(20),
//	})
//
// Encode rejects records with unknown fields, mismatched kinds, integers
// outside the column range and strings longer than the column size; the
// returned error wraps ErrSchemaMismatch. Fields missing from a record are
// stored as zero values.
//
// # Filters
//
// Filters select records by field value:
//
//	fs := metadata.NewFilterSet(
//	    metadata.Gte("exp_time", metadata.Int(5)),
//	    metadata.Eq("some_string", metadata.String("dark frame")),
//	)
//
// ParseFilter reads the compact form used on the command line, for example
// "exp_time>=5".
package metadata
