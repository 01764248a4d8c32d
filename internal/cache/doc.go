// Package cache provides an LRU cache for decoded container chunks.
//
// Reading image i decodes (and possibly decompresses) the whole chunk holding
// it. Sequential iteration and neighbouring random reads hit the same chunk,
// so decoded chunks are kept in a byte-bounded LRU keyed by object and frame
// offset.
package cache
