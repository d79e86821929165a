// Package source reads published releases from the remote endpoint.
//
// For a target and deployment version the remote publishes a release
// descriptor at <endpoint>/<target>/<deployment>.toml naming the target's
// version for that deployment and the archive holding it, which lives next to
// the descriptor at <endpoint>/<target>/<archive>.
package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the remote has no such descriptor or
	// archive.
	ErrNotFound = errors.New("not found at remote")
)

// Source provides releases for targets.
type Source interface {
	// Release fetches the descriptor of target for the deployment version.
	Release(ctx context.Context, target, deployment string) (*Release, error)
	// Archive opens the release's archive. The caller must close it.
	Archive(ctx context.Context, rel *Release) (io.ReadCloser, error)
}

// backend fetches objects by a slash separated key relative to the endpoint.
type backend interface {
	fetch(ctx context.Context, key string) (io.ReadCloser, error)
	String() string
}

type options struct {
	log        logging.Logger
	httpClient *http.Client
	s3         s3iface.S3API
	cacheTTL   time.Duration
	breaker    breakerSettings
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used for fetch logging.
func WithLogger(log logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithHTTPClient sets the client used for http and https endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithHTTPTimeout bounds how long an http request waits for the remote's
// response headers. Reading the body isn't bounded, so large archives can
// stream for as long as the remote keeps sending.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) { o.httpClient = headerTimeoutClient(d) }
}

func headerTimeoutClient(d time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = d
	return &http.Client{Transport: t}
}

// WithS3 sets the client used for s3 endpoints. Without it a client is
// created from the environment's shared AWS configuration.
func WithS3(api s3iface.S3API) Option {
	return func(o *options) { o.s3 = api }
}

// WithCacheTTL sets how long fetched descriptors are reused. Zero disables
// caching.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) { o.cacheTTL = d }
}

// WithBreaker tunes the circuit breaker guarding the remote: it opens after
// failures consecutive failures and half-opens after timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(o *options) {
		o.breaker.failures = failures
		o.breaker.timeout = timeout
	}
}

// New creates the Source for the endpoint in rawURL. Supported schemes are
// http, https and s3 (s3://bucket/prefix, optionally ?region=). A malformed or
// unsupported endpoint is a configuration error.
func New(rawURL string, opts ...Option) (Source, error) {
	o := options{
		cacheTTL: defaultCacheTTL,
		breaker:  defaultBreakerSettings,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.New("source")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &config.Error{Field: "URL", Problem: err.Error()}
	}

	var b backend
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, &config.Error{Field: "URL", Problem: "missing host in " + rawURL}
		}
		b = newHTTPBackend(u, o.httpClient)
	case "s3":
		if u.Host == "" {
			return nil, &config.Error{Field: "URL", Problem: "missing bucket in " + rawURL}
		}
		api := o.s3
		if api == nil {
			api, err = defaultS3(u.Query().Get("region"))
			if err != nil {
				return nil, errors.WithMessage(err, "unable to setup s3 client")
			}
		}
		b = newS3Backend(u, api)
	default:
		return nil, &config.Error{Field: "URL", Problem: "unsupported scheme " + u.Scheme}
	}

	return newGuarded(o.log, &remote{b}, o.breaker, o.cacheTTL), nil
}

// remote reads releases from a backend following the published layout.
type remote struct {
	backend backend
}

func (r *remote) Release(ctx context.Context, target, deployment string) (*Release, error) {
	body, err := r.backend.fetch(ctx, descriptorKey(target, deployment))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(io.LimitReader(body, maxDescriptorSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read release descriptor")
	}
	if len(raw) > maxDescriptorSize {
		return nil, errors.Errorf("release descriptor exceeds %d bytes", maxDescriptorSize)
	}
	return ParseRelease(target, deployment, raw)
}

func (r *remote) Archive(ctx context.Context, rel *Release) (io.ReadCloser, error) {
	return r.backend.fetch(ctx, archiveKey(rel))
}

func (r *remote) String() string {
	return r.backend.String()
}

func descriptorKey(target, deployment string) string {
	return target + "/" + deployment + ".toml"
}

func archiveKey(rel *Release) string {
	return rel.Target + "/" + rel.Archive
}
