package pdfsizeopt

import (
	"fmt"
	"strings"

	"github.com/tsawler/pdfsizeopt/logging"
)

// Warning is a problem the optimizer worked around. The affected object
// was kept as it was.
type Warning struct {
	Step string // pipeline step, e.g. "images"
	Obj  int    // object number, 0 if not about one object
	Err  error
}

func (w Warning) String() string {
	if w.Obj > 0 {
		return fmt.Sprintf("%s: obj %d: %v", w.Step, w.Obj, w.Err)
	}
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

// FormatWarnings returns one warning per line.
func FormatWarnings(warnings []Warning) string {
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = w.String()
	}
	return strings.Join(lines, "\n")
}

// warn records a warning and logs it.
func (r *run) warn(step string, obj int, err error) {
	r.warnings = append(r.warnings, Warning{Step: step, Obj: obj, Err: err})
	logging.Logger().Warn("keeping original", "step", step, "obj", obj, "err", err)
}
