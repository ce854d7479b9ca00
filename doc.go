// Package prefixgz precomputes checkpoints over an append-only gzip tar.
//
// An append-only archive such as Hackage's 01-index.tar.gz grows by adding
// tar entries at the end. Each entry's mtime records the index state
// (version) at which it was added. Precompute recompresses the whole archive
// once and, at every index state boundary, records a small trailer so that
//
//	output[:PrefixSize] + Trailer
//
// is a complete gzip stream holding exactly the entries up to that index
// state followed by the tar EOF marker. A server holding the main output
// (or a byte-identical upstream copy) can then hand out any historical
// version of the archive with one range read plus a few hundred bytes.
//
// # Quick Start
//
// Precompute checkpoints for a local archive:
//
//	in, _, err := prefixgz.OpenInput(f)
//	if err != nil {
//	    return err
//	}
//	defer in.Close()
//	enc := prefixgz.NewJSONEncoder(recordsFile)
//	sum, err := prefixgz.Precompute(ctx, in, out, enc.Encode,
//	    prefixgz.WithLogger(logger),
//	)
//
// Rebuild one version from the published records:
//
//	cps, err := prefixgz.DecodeRecords(recordsFile, prefixgz.RecordJSON)
//	if err != nil {
//	    return err
//	}
//	set, err := prefixgz.NewCheckpoints(cps)
//	if err != nil {
//	    return err
//	}
//	cp, err := set.Lookup(indexState)
//	if err != nil {
//	    return err
//	}
//	_, err = io.Copy(dst, prefixgz.Reconstruct(outputFile, cp))
//
// Verify checks every record against the main output:
//
//	err = prefixgz.Verify(ctx, outputFile, cps, prefixgz.WithConcurrency(4))
//
// # Engines
//
// EngineForked, the default, owns a zlib-compatible deflater whose state is
// copied at each checkpoint, so its output matches zlib level 9 byte for
// byte and the main output can be served from an upstream copy compressed
// the same way. EngineReplay uses klauspost/compress and replays the
// history at every checkpoint; its output is valid gzip but not
// zlib-identical.
package prefixgz
