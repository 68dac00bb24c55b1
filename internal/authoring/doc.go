// Package authoring builds engine.ChunkSpec values from authored content.
//
// Two sources are supported:
//
//   - CUE bundles: a directory of .cue files declaring
//     chunk: <name>: {status: {...}, expression: {...}, behavior: [...]}
//   - CSV relation tables: <chunk>.status.csv, <chunk>.expression.csv and
//     <chunk>.behavior.csv triplets in the same directory
//
// Both produce the same specs a programmatic caller would pass to
// engine.Driver.ExtendChunk. Loading never touches a driver; registration
// errors (duplicate keys, forward references) surface at ExtendChunk.
//
// Keys are derived from names with the ir.*KeyOf hashes. Right-hand cells may
// be prefixed with STATUS: (read another status) or HASH: (the hashed key of
// a string, as an unsigned value).
package authoring
