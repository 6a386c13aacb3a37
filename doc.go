// Package pdfsizeopt makes PDF files smaller without changing how they
// render.
//
// Basic usage:
//
//	_, warnings, err := pdfsizeopt.Open("in.pdf").WriteFile("out.pdf")
//	if err != nil {
//	    // handle error
//	}
//	if len(warnings) > 0 {
//	    log.Println("Warnings:", pdfsizeopt.FormatWarnings(warnings))
//	}
//
// With options:
//
//	data, _, err := pdfsizeopt.FromBytes(input).
//	    UseJBIG2(false).
//	    UnifyPages(false).
//	    Bytes()
//
// The pipeline loads the file, repairs malformed numbers, converts Type1
// fonts to Type1C, renames Type1C fonts after their object numbers,
// recompresses images and other streams, canonicalizes object heads,
// merges equivalent objects, drops unreachable ones and renumbers the
// rest, and writes the result with the smallest cross-reference layout.
// Multivalent may be run on the output as a last step.
//
// Every step that cannot improve an object leaves it as it was and may
// report a [Warning]. Only loading and writing errors are fatal;
// encrypted files are refused with [core.ErrEncrypted].
//
// External programs (Ghostscript, sam2p, pngout, jbig2, Java) are run
// through the [Tools]; a missing program disables its step after the first
// attempt. The lower-level packages (reader, writer, eqclass, font, stats)
// can be used on their own.
package pdfsizeopt
