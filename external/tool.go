package external

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/juju/errgo"

	"github.com/tsawler/pdfsizeopt/logging"
)

var (
	// ErrToolMissing is the cause of errors for programs not found.
	ErrToolMissing = errgo.New("external tool not found")

	// ErrToolFailed is the cause of errors for programs that exited with
	// a failure or did not produce their output.
	ErrToolFailed = errgo.New("external tool failed")
)

// Tool is an external program. Path is looked up in PATH unless it
// contains a path separator. Args are passed before the arguments of
// each run, and Env is added to the environment.
type Tool struct {
	Path string
	Args []string
	Env  []string
}

// Run runs the tool with args and returns its standard output.
func (t Tool) Run(ctx context.Context, args ...string) ([]byte, error) {
	path, err := exec.LookPath(t.Path)
	if err != nil {
		return nil, errgo.WithCausef(err, ErrToolMissing, "cannot find %s", t.Path)
	}
	argv := append(append([]string(nil), t.Args...), args...)
	cmd := exec.CommandContext(ctx, path, argv...)
	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), t.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Logger().Info("executing", "tool", t.Path, "args", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		return nil, errgo.WithCausef(err, ErrToolFailed, "%s failed: %s", t.Path, lastLine(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// lastLine returns the last non-empty line of out.
func lastLine(out []byte) string {
	out = bytes.TrimRight(out, "\r\n\t ")
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return string(out)
}

// orDefault returns t, or a tool running name if t has no path.
func (t Tool) orDefault(name string, args ...string) Tool {
	if t.Path == "" {
		return Tool{Path: name, Args: args, Env: t.Env}
	}
	return t
}
