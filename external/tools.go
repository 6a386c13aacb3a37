package external

import (
	"context"
	"strings"

	"github.com/juju/errgo"
)

// ImageRecompressor losslessly recompresses a PNG file.
type ImageRecompressor interface {
	Name() string
	Recompress(ctx context.Context, ws *Workspace, png []byte) ([]byte, error)
}

// JBIG2Encoder encodes a bilevel PNG as a JBIG2 generic region stream
// suitable for /JBIG2Decode without globals.
type JBIG2Encoder interface {
	Encode(ctx context.Context, ws *Workspace, png []byte) ([]byte, error)
}

// Runner recompresses a whole PDF file.
type Runner interface {
	Run(ctx context.Context, ws *Workspace, pdf []byte) ([]byte, error)
}

// convert writes input, runs tool with args in which "$in" and "$out"
// stand for the input and output files, and returns the output file.
func convert(ctx context.Context, ws *Workspace, tool Tool, input []byte, inName, outName string, args ...string) ([]byte, error) {
	in, err := ws.WriteFile(inName, input)
	if err != nil {
		return nil, err
	}
	out := ws.Path(outName)
	defer ws.Remove(in)
	defer ws.Remove(out)
	argv := make([]string, len(args))
	for i, a := range args {
		argv[i] = strings.NewReplacer("$in", in, "$out", out).Replace(a)
	}
	if _, err := tool.Run(ctx, argv...); err != nil {
		return nil, errgo.NoteMask(err, tool.Path, errgo.Any)
	}
	return ws.ReadFile(out)
}

// PNGOut runs pngout.
type PNGOut struct {
	Tool Tool
}

func (PNGOut) Name() string { return "pngout" }

// Recompress runs pngout on png.
func (p PNGOut) Recompress(ctx context.Context, ws *Workspace, png []byte) ([]byte, error) {
	tool := p.Tool.orDefault("pngout")
	return convert(ctx, ws, tool, png, ws.Unique("img-%d.png"), ws.Unique("img-%d.pngout.png"), "-force", "$in", "$out")
}

// Sam2p runs sam2p with its strongest PNG predictor setting.
type Sam2p struct {
	Tool Tool
}

func (Sam2p) Name() string { return "sam2p" }

// Recompress runs sam2p on png.
func (s Sam2p) Recompress(ctx context.Context, ws *Workspace, png []byte) ([]byte, error) {
	tool := s.Tool.orDefault("sam2p")
	return convert(ctx, ws, tool, png, ws.Unique("img-%d.png"), ws.Unique("img-%d.sam2p.png"), "-c", "zip:15:9", "--", "$in", "$out")
}

// JBIG2 runs the jbig2 encoder in PDF mode, which writes the stream to
// standard output.
type JBIG2 struct {
	Tool Tool
}

// Encode runs jbig2 on png.
func (j JBIG2) Encode(ctx context.Context, ws *Workspace, png []byte) ([]byte, error) {
	tool := j.Tool.orDefault("jbig2")
	in, err := ws.WriteFile(ws.Unique("img-%d.bilevel.png"), png)
	if err != nil {
		return nil, err
	}
	defer ws.Remove(in)
	out, err := tool.Run(ctx, "-p", in)
	if err != nil {
		return nil, errgo.NoteMask(err, "jbig2", errgo.Any)
	}
	if len(out) == 0 {
		return nil, errgo.WithCausef(nil, ErrToolFailed, "jbig2 wrote no data")
	}
	return out, nil
}

// Multivalent runs tool.pdf.Compress from Multivalent.jar, which writes
// its result next to the input with an "-o" suffix.
type Multivalent struct {
	// Tool runs java. Its default is "java -cp Multivalent.jar".
	Tool Tool

	// Jar is the path of Multivalent.jar used by the default tool.
	Jar string
}

// Run compresses pdf with Multivalent.
func (m Multivalent) Run(ctx context.Context, ws *Workspace, pdf []byte) ([]byte, error) {
	jar := m.Jar
	if jar == "" {
		jar = "Multivalent.jar"
	}
	tool := m.Tool.orDefault("java", "-cp", jar)
	in, err := ws.WriteFile("multivalent.tmp.pdf", pdf)
	if err != nil {
		return nil, err
	}
	out := ws.Path("multivalent.tmp-o.pdf")
	defer ws.Remove(in)
	defer ws.Remove(out)
	if _, err := tool.Run(ctx, "tool.pdf.Compress", "-nopagepiece", "-noalt", in); err != nil {
		return nil, errgo.NoteMask(err, "Multivalent", errgo.Any)
	}
	return ws.ReadFile(out)
}
