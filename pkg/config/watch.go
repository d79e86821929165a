package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// DefaultWatchFile is read by watch mode when no file is named.
const DefaultWatchFile = "/etc/verdir/watch.toml"

const (
	defaultInterval    = 15 * time.Minute
	defaultHTTPTimeout = 5 * time.Minute
)

// Watch configures the long running watch mode.
type Watch struct {
	// Interval between the end of one cycle and the start of the next.
	Interval string `toml:"interval" default:"15m0s"`
	// Unit is the systemd unit restarted when a cycle stages a critical
	// update. Empty disables restarts.
	Unit string `toml:"unit"`
	// InstallPromoteDropIn adds an ExecStartPre promoting staged versions to
	// Unit.
	InstallPromoteDropIn bool `toml:"install-promote-dropin"`
	// Notify sends readiness and status to systemd.
	Notify bool `toml:"notify" default:"true"`
	// Daemon lets the process exit without waiting on an in-flight cycle.
	Daemon bool `toml:"daemon" default:"true"`
	// Debug enables debug logging.
	Debug bool `toml:"debug"`
	// HTTPTimeout bounds how long each remote request waits for response
	// headers.
	HTTPTimeout string `toml:"http-timeout" default:"5m0s"`
}

// DefaultWatch returns the configuration used when no file exists.
func DefaultWatch() *Watch {
	return &Watch{
		Interval:    defaultInterval.String(),
		Notify:      true,
		Daemon:      true,
		HTTPTimeout: defaultHTTPTimeout.String(),
	}
}

// LoadWatch reads the TOML file at path over the defaults. A missing file
// yields the defaults.
func LoadWatch(path string) (*Watch, error) {
	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultWatch(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read watch config %s", path)
	}
	return ParseWatch(raw)
}

// ParseWatch decodes TOML over the defaults and validates the result.
func ParseWatch(raw []byte) (*Watch, error) {
	w := DefaultWatch()
	if err := toml.Unmarshal(raw, w); err != nil {
		return nil, errors.Wrap(err, "decode watch config")
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watch) validate() error {
	if _, err := parsePositive("interval", w.Interval); err != nil {
		return err
	}
	if _, err := parsePositive("http-timeout", w.HTTPTimeout); err != nil {
		return err
	}
	if w.InstallPromoteDropIn && w.Unit == "" {
		return invalid("install-promote-dropin", "requires unit to be set")
	}
	return nil
}

func parsePositive(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, invalid(field, "%q is not a duration", value)
	}
	if d <= 0 {
		return 0, invalid(field, "must be positive, got %s", d)
	}
	return d, nil
}

// IntervalDuration is the parsed Interval, the default when unparsable.
func (w *Watch) IntervalDuration() time.Duration {
	return durationOr(w.Interval, defaultInterval)
}

// HTTPTimeoutDuration is the parsed HTTPTimeout, the default when
// unparsable.
func (w *Watch) HTTPTimeoutDuration() time.Duration {
	return durationOr(w.HTTPTimeout, defaultHTTPTimeout)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
