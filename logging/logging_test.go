package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/pdfsizeopt/logging"
)

func TestSetLogger(t *testing.T) {
	old := logging.Logger()
	defer logging.SetLogger(old)

	var buf bytes.Buffer
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logging.Logger().Warn("xref broken", slog.Int("offset", 42))

	assert.Contains(t, buf.String(), "xref broken")
	assert.Contains(t, buf.String(), "offset=42")
}

func TestSetLoggerNilDiscards(t *testing.T) {
	old := logging.Logger()
	defer logging.SetLogger(old)

	logging.SetLogger(nil)
	l := logging.Logger()
	require.NotNil(t, l)
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestLoggerConcurrentAccess(t *testing.T) {
	old := logging.Logger()
	defer logging.SetLogger(old)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				logging.SetLogger(slog.New(logging.NewBufferedHandler(nil)))
				return
			}
			logging.Logger().Debug("concurrent")
		}(i)
	}
	wg.Wait()
}

func TestBufferedHandler(t *testing.T) {
	h := logging.NewBufferedHandler(slog.LevelWarn)
	l := slog.New(h)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("length fixed", slog.Int("obj", 7))
	l.Error("fatal")

	require.Equal(t, 2, h.Len())
	assert.Equal(t, 1, h.Count(slog.LevelWarn))
	assert.Equal(t, 1, h.Count(slog.LevelError))
	assert.True(t, h.Contains("length fixed obj=7"))
	assert.False(t, h.Contains("dropped"))
	assert.Equal(t, "WARN length fixed obj=7\nERROR fatal\n", h.String())

	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, "", h.String())
}

func TestBufferedHandlerDerived(t *testing.T) {
	h := logging.NewBufferedHandler(nil)
	derived := h.WithAttrs([]slog.Attr{slog.String("step", "load")}).WithGroup("obj")
	slog.New(derived).Info("parsed", slog.Int("num", 3))

	lines := h.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO parsed step=load obj.num=3", lines[0])
	assert.Same(t, h, h.WithGroup(""))
}
