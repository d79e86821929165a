package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type breakerSettings struct {
	failures uint32
	timeout  time.Duration
}

var defaultBreakerSettings = breakerSettings{
	failures: 3,
	timeout:  30 * time.Second,
}

// guarded shields a remote behind a descriptor cache and a circuit breaker so
// an unreachable endpoint fails the remaining targets quickly instead of
// waiting on each in turn.
type guarded struct {
	log     logging.Logger
	remote  *remote
	breaker *gobreaker.CircuitBreaker
	cache   *releaseCache
}

func newGuarded(log logging.Logger, r *remote, bs breakerSettings, ttl time.Duration) *guarded {
	g := &guarded{
		log:    log.WithField("remote", r.String()),
		remote: r,
		cache:  newReleaseCache(ttl),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        r.String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     bs.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.failures
		},
		IsSuccessful: func(err error) bool {
			// The remote answered, or we gave up on it ourselves.
			return err == nil || IsNotFound(err) ||
				errors.Is(err, ErrInvalidRelease) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("remote circuit changed state")
		},
	})
	return g
}

func (g *guarded) Release(ctx context.Context, target, deployment string) (*Release, error) {
	if rel := g.cache.Last(target, deployment); rel != nil {
		if logging.Debuggable {
			g.log.WithField("release", cacheKey(target, deployment)).Debug("using cached release")
		}
		return rel, nil
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.remote.Release(ctx, target, deployment)
	})
	if err != nil {
		return nil, g.explain(err)
	}
	rel := res.(*Release)
	g.cache.Record(rel)
	return rel, nil
}

func (g *guarded) Archive(ctx context.Context, rel *Release) (io.ReadCloser, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.remote.Archive(ctx, rel)
	})
	if err != nil {
		return nil, g.explain(err)
	}
	return res.(io.ReadCloser), nil
}

func (g *guarded) explain(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.Wrap(err, fmt.Sprintf("remote %s is unavailable", g.remote.String()))
	}
	return err
}

// IsNotFound reports whether err means the remote has no such object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
