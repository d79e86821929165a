package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/agent"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/sigcontext"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/supervisor"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/updater"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/workgroup"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const (
	exitUsage         = 1
	exitConfig        = 2
	exitNotRunnable   = 3
	exitPromoteFailed = 4

	argsUsage = "URL DEPLOYMENT_VERSION TARGETS"
)

// hostFS is the filesystem targets are managed on.
var hostFS = func() billy.Filesystem {
	return osfs.New("/")
}

func main() {
	os.Exit(_main(os.Args))
}

func _main(args []string) int {
	logging.Set(logging.Console())
	log := logging.New("main")

	ctx, which, cancel := sigcontext.WithSignalNotify(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newApp().RunContext(ctx, args)
	logInterrupt(log, which)
	if err == nil {
		return 0
	}
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		if msg := exit.Error(); msg != "" {
			log.Error(msg)
		}
		return exit.ExitCode()
	}
	log.WithError(err).Error("unable to complete")
	return exitUsage
}

// logInterrupt logs the signal that ended the run, if there was one.
func logInterrupt(log logging.Logger, which func() os.Signal) bool {
	sig := which()
	if sig == nil {
		return false
	}
	log.WithField("signal", sig.String()).Warn("interrupted")
	return true
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "verdir",
		Usage:           "keep versioned directories in step with a deployment",
		ArgsUsage:       argsUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "log debug output"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logging.Set(logging.Level("debug"))
			}
			return nil
		},
		// Exit codes are handled by _main.
		ExitErrHandler: func(*cli.Context, error) {},
		Action:         runOnce,
		Commands: []*cli.Command{
			{
				Name:      "state",
				Usage:     "print the recorded versions of every target",
				ArgsUsage: argsUsage,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print as JSON"},
				},
				Action: printState,
			},
			{
				Name:      "promote",
				Usage:     "make staged versions current",
				ArgsUsage: argsUsage,
				Action:    promote,
			},
			{
				Name:      "watch",
				Usage:     "keep checking for updates in the background",
				ArgsUsage: argsUsage,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: config.DefaultWatchFile, Usage: "watch configuration `FILE`"},
					&cli.BoolFlag{Name: "verbose", Usage: "log every target check"},
				},
				Action: watch,
			},
		},
	}
}

// newUpdater builds the updater from the command's positional arguments.
func newUpdater(c *cli.Context, opts ...updater.Option) (*updater.Updater, error) {
	if c.NArg() != 3 {
		return nil, cli.Exit(fmt.Sprintf("expected 3 arguments (%s), got %d", argsUsage, c.NArg()), exitUsage)
	}
	opts = append([]updater.Option{
		updater.WithLogger(logging.New("updater")),
		updater.WithFilesystem(hostFS()),
	}, opts...)
	u, err := updater.New(c.Args().Get(0), c.Args().Get(1), c.Args().Get(2), opts...)
	if err != nil {
		if config.IsError(err) {
			return nil, cli.Exit(err.Error(), exitConfig)
		}
		return nil, err
	}
	return u, nil
}

func runOnce(c *cli.Context) error {
	u, err := newUpdater(c)
	if err != nil {
		return err
	}
	ok := u.Run(c.Context, true, progress.Console(logging.New("progress"), true))
	if !ok && !u.State().IsRunnable() {
		return cli.Exit("update failed and targets are left without a runnable version", exitNotRunnable)
	}
	return nil
}

func printState(c *cli.Context) error {
	u, err := newUpdater(c)
	if err != nil {
		return err
	}
	s := u.State()
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(c.App.Writer, "deployment %s\n", s.DeploymentVersion)
	for _, t := range s.Targets {
		fmt.Fprintln(c.App.Writer, t.String())
	}
	return nil
}

func promote(c *cli.Context) error {
	u, err := newUpdater(c)
	if err != nil {
		return err
	}
	if err := u.Promote(); err != nil {
		return cli.Exit(err.Error(), exitPromoteFailed)
	}
	return nil
}

func watch(c *cli.Context) error {
	log := logging.New("watch")
	cfg, err := config.LoadWatch(c.String("config"))
	if err != nil {
		if config.IsError(err) {
			return cli.Exit(err.Error(), exitConfig)
		}
		return err
	}
	if cfg.Debug {
		logging.Set(logging.Level("debug"))
	}

	u, err := newUpdater(c, updater.WithSourceOptions(source.WithHTTPTimeout(cfg.HTTPTimeoutDuration())))
	if err != nil {
		return err
	}
	sup := supervisor.New(logging.New("supervisor"), cfg)
	if cfg.InstallPromoteDropIn {
		exe, err := os.Executable()
		if err != nil {
			return errors.Wrap(err, "unable to locate executable")
		}
		cmd := append([]string{exe, "promote"}, c.Args().Slice()...)
		if _, err := sup.EnsurePromoteDropIn(c.Context, cfg.Unit, cmd); err != nil {
			log.WithError(err).Warn("unable to install promote drop-in")
		}
	}

	log.WithField("targets", u.Targets()).Info("watching")
	ag := agent.New(c.Context, logging.New("agent"), u, sup,
		agent.Daemon(cfg.Daemon), agent.Verbose(c.Bool("verbose")))

	group := workgroup.WithContext(c.Context)
	group.Work(func(ctx context.Context) error {
		select {
		case <-ag.Done():
			if err := ag.Wait(); err != nil {
				return err
			}
			// Ends the watchdog as well.
			return errStopped
		case <-ctx.Done():
			return nil
		}
	})
	group.Work(sup.Watchdog)

	err = group.Wait()
	agent.WaitForeground()
	if err == errStopped {
		log.WithField("cycles", ag.Cycles()).Info("stopped")
		return nil
	}
	return err
}

var errStopped = errors.New("agent stopped")
