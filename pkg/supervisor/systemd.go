package supervisor

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	systemd "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

var (
	systemdSocket        = "/run/systemd/private"
	systemdUnitTransient = "/run/systemd/system"
)

// notifier reports service state to the service manager.
type notifier interface {
	Notify(state string) (bool, error)
}

type sdNotifier struct{}

func (sdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func sdWatchdogTimeout() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}

// systemdConn is the part of the systemd D-Bus API used here.
type systemdConn interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ReloadContext(ctx context.Context) error
	Close()
}

var _ systemdConn = (*systemd.Conn)(nil)

// connect opens a connection on systemd's private socket, which is available
// to root without a system bus.
func connect(ctx context.Context) (systemdConn, error) {
	dialer := func() (*dbus.Conn, error) {
		conn, err := dbus.Dial("unix:path="+systemdSocket, dbus.WithContext(ctx))
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to systemd socket")
		}
		// Authenticate with the user's authority.
		methods := []dbus.Auth{dbus.AuthExternal(strconv.Itoa(os.Getuid()))}
		err = conn.Auth(methods)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "unable to authenticate with systemd")
		}
		return conn, nil
	}
	conn, err := systemd.NewConnection(dialer)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
