package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

func testConsole(verbose bool) (*console, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	at := time.Unix(0, 0)
	return &console{
		log:     l.WithField("component", "console"),
		verbose: verbose,
		now:     func() time.Time { return at },
	}, &buf
}

func TestConsoleRendersOutcomes(t *testing.T) {
	c, buf := testConsole(true)
	c.Starting(3)
	c.Start("a", "").CompleteNoUpdate()
	c.Start("b", "1.0.0").CompleteWithCriticalUpdate("2.0.0")
	c.Start("c", "1.0.0").Fail("remote unavailable")
	c.Finished()

	out := buf.String()
	t.Log(out)
	assert.Check(t, is.Contains(out, "targets=3"))
	assert.Check(t, is.Contains(out, "target=a"))
	assert.Check(t, is.Contains(out, "local=none"))
	assert.Check(t, is.Contains(out, "pending=2.0.0"))
	assert.Check(t, is.Contains(out, `reason="remote unavailable"`))
	assert.Check(t, is.Contains(out, "finished with failures"))
	assert.Equal(t, c.counts, [NumOutcomes]int{1, 0, 1, 1})
}

func TestConsoleQuietWhenNotVerbose(t *testing.T) {
	c, buf := testConsole(false)
	c.Starting(1)
	c.Start("a", "1.0.0").CompleteNoUpdate()
	c.Finished()

	out := buf.String()
	assert.Check(t, !bytes.Contains([]byte(out), []byte("up to date")))
	assert.Check(t, is.Contains(out, "msg=finished"))
}
