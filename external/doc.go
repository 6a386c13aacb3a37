// Package external runs the helper programs the optimizer delegates to:
// Ghostscript for Type1 to Type1C font conversion, PNG optimizers such as
// pngout and sam2p, the jbig2 bilevel encoder, and the Multivalent Java
// tool.
//
// Every capability is an interface so that the pipeline can be driven with
// fakes in tests. The exec-based implementations exchange data with the
// child processes through files in a [Workspace], and wrap failures with
// [ErrToolMissing] or [ErrToolFailed] as the errgo cause:
//
//	ws := external.NewWorkspace("")
//	defer ws.Cleanup()
//	out, err := external.PNGOut{}.Recompress(ctx, ws, png)
//	if errgo.Cause(err) == external.ErrToolMissing {
//	    // keep the original image
//	}
package external
