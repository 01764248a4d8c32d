// Package conv provides bounds-checked integer conversions for values that
// cross the on-disk boundary: frame lengths, counts and offsets.
//
// Values read from a file are untrusted; a corrupted header must surface as
// an error rather than a silently wrapped length.
package conv
