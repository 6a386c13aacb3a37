package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/tsawler/pdfsizeopt"
	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/logging"
	"github.com/tsawler/pdfsizeopt/writer"
)

func writeTestPDF(t *testing.T) string {
	t.Helper()
	doc := core.NewDocument("1.4")
	doc.Trailer = core.NewObject([]byte("<</Root 1 0 R>>"), nil)
	doc.Objects[1] = core.NewObject([]byte("<</Type/Catalog/Pages 2 0 R>>"), nil)
	doc.Objects[2] = core.NewObject([]byte("<</Type/Pages/Kids[3 0 R]/Count 1>>"), nil)
	doc.Objects[3] = core.NewObject([]byte("<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>"), nil)
	doc.Objects[4] = core.NewObject([]byte("(unused)"), nil)
	data, err := writer.Serialize(doc, writer.Options{})
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { logging.SetLogger(nil) })
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(pdfsizeopt.Tools{}, &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.pdf", "a.type1c.pdf"},
		{"dir/b.PDF", "dir/b.PDF.type1c.pdf"},
		{"c", "c.type1c.pdf"},
	}

	for _, tt := range tests {
		if got := outputName(tt.in); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOptionFlags(t *testing.T) {
	tests := []struct {
		args    []string
		check   func(pdfsizeopt.Options) bool
		wantErr bool
	}{
		{[]string{"--use-jbig2=no"}, func(o pdfsizeopt.Options) bool { return !o.UseJBIG2 }, false},
		{[]string{"--use-jbig2=OFF"}, func(o pdfsizeopt.Options) bool { return !o.UseJBIG2 }, false},
		{[]string{"--use-multivalent"}, func(o pdfsizeopt.Options) bool { return o.UseMultivalent }, false},
		{[]string{"--do-unify-pages=0"}, func(o pdfsizeopt.Options) bool { return !o.UnifyPages }, false},
		{[]string{"--do-decompress-flate=true"}, func(o pdfsizeopt.Options) bool { return o.DecompressFlate }, false},
		{[]string{"--use-pngout=maybe"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			opts := pdfsizeopt.DefaultOptions()
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			addOptionFlags(fs, &opts)
			err := fs.Parse(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(opts) {
				t.Errorf("Parse(%v) gave options %+v", tt.args, opts)
			}
		})
	}
}

func TestBoolValueString(t *testing.T) {
	on, off := true, false
	if got := (boolValue{&on}).String(); got != "yes" {
		t.Errorf("String() = %q, want yes", got)
	}
	if got := (boolValue{&off}).String(); got != "no" {
		t.Errorf("String() = %q, want no", got)
	}
}

func TestCommandOptimizes(t *testing.T) {
	in := writeTestPDF(t)
	stdout, _, err := execute(t, in, "--quiet")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	out := strings.TrimSuffix(in, ".pdf") + ".type1c.pdf"
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output file: %v", err)
	}
	if !strings.Contains(stdout, "bytes") {
		t.Errorf("stdout = %q, want a size summary", stdout)
	}
}

func TestCommandExplicitOutput(t *testing.T) {
	in := writeTestPDF(t)
	out := filepath.Join(t.TempDir(), "small.pdf")
	if _, _, err := execute(t, "-q", "--do-generate-xref-stream=no", in, out); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Contains(data, []byte("\nxref\n")) {
		t.Error("output has no classical xref table")
	}
}

func TestCommandStats(t *testing.T) {
	in := writeTestPDF(t)
	stdout, _, err := execute(t, "--stats", in)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(stdout, "total:") {
		t.Errorf("stdout = %q, want a total line", stdout)
	}
	if _, err := os.Stat(strings.TrimSuffix(in, ".pdf") + ".type1c.pdf"); !os.IsNotExist(err) {
		t.Error("--stats wrote an output file")
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"too many", []string{"a.pdf", "b.pdf", "c.pdf"}},
		{"missing file", []string{filepath.Join(t.TempDir(), "none.pdf")}},
		{"bad flag value", []string{"--use-jbig2=maybe", "a.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); err == nil {
				t.Errorf("Execute(%v) expected error", tt.args)
			}
		})
	}
}
