// Package testoutput interlaces log output with the running test's output.
package testoutput

import (
	"io"
	"os"
	"testing"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/sirupsen/logrus"
)

// New returns a writer that forwards each write, assumed to be a line, to the
// test's log.
func New(t testing.TB) io.Writer {
	return &testWriter{t}
}

// Logger returns a component logger bound to its own logrus instance that
// writes into the test log at debug level. Each call gets an independent
// logger so parallel tests don't share output.
func Logger(t testing.TB, component string) logging.Logger {
	l := logrus.New()
	l.SetOutput(New(t))
	l.SetLevel(logrus.DebugLevel)
	return l.WithField(logging.ComponentField, component)
}

// Setter points the shared root logger at the test. Tests using it must not
// run in parallel and should defer Revert.
func Setter(t testing.TB) logging.Setter {
	return func(l *logrus.Logger) error {
		l.SetOutput(New(t))
		l.SetLevel(logrus.DebugLevel)
		return nil
	}
}

// Revert restores the root logger output to stderr.
func Revert() logging.Setter {
	return func(l *logrus.Logger) error {
		l.SetOutput(os.Stderr)
		return nil
	}
}

type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Logf("%s", p)
	return len(p), nil
}
