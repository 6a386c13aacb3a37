package external

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/juju/errgo"
)

// Workspace names the temporary files of one optimizer run. All names
// share a process-unique prefix, and Cleanup removes the files that were
// handed out.
type Workspace struct {
	Dir    string
	Prefix string

	files map[string]bool
	seq   int
}

// NewWorkspace returns a workspace in dir, or in the system temporary
// directory if dir is empty.
func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Workspace{
		Dir:    dir,
		Prefix: fmt.Sprintf("psotmp.%d.", os.Getpid()),
		files:  map[string]bool{},
	}
}

// Path returns the file name for name and remembers it for Cleanup. Any
// existing file of that name is removed.
func (w *Workspace) Path(name string) string {
	if w.files == nil {
		w.files = map[string]bool{}
	}
	p := filepath.Join(w.Dir, w.Prefix+name)
	w.files[p] = true
	os.Remove(p)
	return p
}

// Unique formats format with a number not used before in w, for file
// names that must not collide within a run.
func (w *Workspace) Unique(format string) string {
	w.seq++
	return fmt.Sprintf(format, w.seq)
}

// WriteFile writes data to the file for name and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", errgo.Notef(err, "cannot write temporary file")
	}
	return p, nil
}

// ReadFile reads the file at path, which a tool was expected to create.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errgo.WithCausef(err, ErrToolFailed, "tool has not created %s", path)
	}
	if err != nil {
		return nil, errgo.Notef(err, "cannot read temporary file")
	}
	return data, nil
}

// Remove removes the file at path if it exists.
func (w *Workspace) Remove(path string) error {
	delete(w.files, path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errgo.Mask(err)
	}
	return nil
}

// Files returns the paths handed out and not yet removed, sorted.
func (w *Workspace) Files() []string {
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Cleanup removes every file handed out by Path. It returns the first
// error but tries all files.
func (w *Workspace) Cleanup() error {
	var first error
	for _, p := range w.Files() {
		if err := w.Remove(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
