package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newBufferedLogger(t *testing.T, level int) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(zapcore.AddSync(&buf), level, true), &buf
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(t, WarnLevel)
	logger.Info("round advanced")
	logger.Warn("quorum at risk")

	require.NotContains(t, buf.String(), "round advanced")
	require.Contains(t, buf.String(), "quorum at risk")
}

func TestWithAttachesFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, InfoLevel)
	logger = logger.With("round", 7, "phase", "sum")
	logger.Info("accepted")

	out := buf.String()
	require.Contains(t, out, "round")
	require.Contains(t, out, "phase")
	require.Contains(t, out, "accepted")
}

func TestNamedIsNested(t *testing.T) {
	logger, buf := newBufferedLogger(t, InfoLevel)
	logger.Named("pet").Info("phase broadcast")
	require.Contains(t, buf.String(), "pet")
}
