package progress

import (
	"time"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/sirupsen/logrus"
)

// console renders a run as log lines, one per target outcome plus a summary.
type console struct {
	log     logging.Logger
	verbose bool

	began  time.Time
	counts [NumOutcomes]int
	now    func() time.Time
}

// Console returns a Callback logging each target's outcome to log. Verbose
// adds a line as each target starts.
func Console(log logging.Logger, verbose bool) Callback {
	return &console{log: log, verbose: verbose, now: time.Now}
}

func (c *console) Starting(expected int) {
	c.began = c.now()
	c.counts = [NumOutcomes]int{}
	c.log.WithField("targets", expected).Info("checking targets")
}

func (c *console) Start(target, localVersion string) Session {
	log := c.log.WithFields(logrus.Fields{
		"target": target,
		"local":  displayVersion(localVersion),
	})
	if c.verbose {
		log.Info("checking")
	}
	return &SessionFuncs{
		OutcomeFunc: func(o Outcome, detail string) {
			c.counts[o]++
			switch o {
			case CriticalUpdate, NonCriticalUpdate:
				log.WithFields(logrus.Fields{
					"pending": detail,
					"outcome": o.String(),
				}).Info("staged update")
			case NoUpdate:
				if c.verbose {
					log.Info("up to date")
				}
			case Failed:
				log.WithField("reason", detail).Error("failed")
			}
		},
	}
}

func (c *console) Finished() {
	fields := logrus.Fields{"elapsed": c.now().Sub(c.began).Round(time.Millisecond).String()}
	for _, o := range Outcomes {
		fields[o.String()] = c.counts[o]
	}
	log := c.log.WithFields(fields)
	if c.counts[Failed] > 0 {
		log.Warn("finished with failures")
		return
	}
	log.Info("finished")
}

func displayVersion(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
