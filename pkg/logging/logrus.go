package logging

import (
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// ComponentField names the top level component emitting the log entry.
	ComponentField = "component"
	// SubComponentField names a worker or helper within a component.
	SubComponentField = "worker"
)

// Setter modifies the root logger, see Set.
type Setter func(*logrus.Logger) error

var root = struct {
	logger *logrus.Logger
	mutex  *sync.Mutex
}{
	logger: func() *logrus.Logger {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		return l
	}(),
	mutex: &sync.Mutex{},
}

// Logger is the logging facade handed to every component.
type Logger interface {
	logrus.FieldLogger
}

// New returns a Logger tagged with the given component after applying any
// provided setters to the root logger.
func New(component string, setters ...Setter) Logger {
	for _, setter := range setters {
		// no errors handling for now
		_ = Set(setter)
	}
	return root.logger.WithField(ComponentField, component)
}

// Set applies the setter to the shared root logger.
func Set(setter Setter) error {
	root.mutex.Lock()
	err := setter(root.logger)
	root.mutex.Unlock()
	return err
}

// Level sets the root logger's level, falling back to debug when lvl can't be
// parsed.
func Level(lvl string) Setter {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		root.logger.WithError(err).Errorf("unable to parse provided level %q", lvl)
		l = logrus.DebugLevel
	}
	return func(r *logrus.Logger) error {
		r.SetLevel(l)
		return nil
	}
}

// Console dispatches entries by level: progress and warnings to stdout, errors
// to stderr. Used when running as an interactive command.
func Console() Setter {
	return Split(os.Stdout, os.Stderr)
}

// Split routes warn and below to out and error and above to errOut.
func Split(out, errOut io.Writer) Setter {
	return func(r *logrus.Logger) error {
		r.SetOutput(ioutil.Discard)
		r.ReplaceHooks(make(logrus.LevelHooks))
		r.AddHook(&splitHook{out, []logrus.Level{
			logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel}})
		r.AddHook(&splitHook{errOut, []logrus.Level{
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}})
		return nil
	}
}

// splitHook writes entries of its levels to its output.
type splitHook struct {
	output io.Writer
	levels []logrus.Level
}

func (h *splitHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = h.output.Write([]byte(line))
	return err
}

func (h *splitHook) Levels() []logrus.Level {
	return h.levels
}
