package supervisor

import (
	"bytes"
	"context"
	"io/ioutil"
	"path"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

const promoteDropIn = "50-verdir-promote.conf"

// EnsurePromoteDropIn installs a transient drop-in running the given command
// line before unit starts, so staged versions are promoted whenever unit is
// (re)started. systemd is reloaded when the drop-in changed. It reports
// whether anything was written.
func (s *Supervisor) EnsurePromoteDropIn(ctx context.Context, unitName string, command []string) (bool, error) {
	if unitName == "" || len(command) == 0 {
		return false, errors.New("promote drop-in requires a unit and a command")
	}
	dir := path.Join(systemdUnitTransient, unitName+".d")
	file := path.Join(dir, promoteDropIn)
	log := s.log.WithField("dropin", file)

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Service", "ExecStartPre", execLine(command)),
	}
	content, err := ioutil.ReadAll(unit.Serialize(opts))
	if err != nil {
		return false, errors.Wrap(err, "unable to render drop-in")
	}

	existing, err := util.ReadFile(s.fs, file)
	if err == nil && bytes.Equal(existing, content) {
		log.Debug("drop-in up to date")
		return false, nil
	}

	if err := s.fs.MkdirAll(dir, 0750); err != nil {
		return false, errors.Wrap(err, "unable to create transient unit dir")
	}
	if err := util.WriteFile(s.fs, file, content, 0644); err != nil {
		return false, errors.Wrap(err, "unable to write drop-in")
	}
	log.Info("installed promote drop-in")

	conn, err := s.connect(ctx)
	if err != nil {
		return true, errors.WithMessage(err, "unable to connect to systemd")
	}
	defer conn.Close()
	if err := conn.ReloadContext(ctx); err != nil {
		return true, errors.Wrap(err, "unable to execute daemon-reload")
	}
	return true, nil
}

// execLine joins args into a systemd command line, quoting where needed.
func execLine(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg != "" && !strings.ContainsAny(arg, " \t\"'\\;$%") {
			quoted[i] = arg
			continue
		}
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `$$`, `%`, `%%`)
		quoted[i] = `"` + r.Replace(arg) + `"`
	}
	return strings.Join(quoted, " ")
}
