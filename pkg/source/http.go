package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/pkg/errors"
)

type httpBackend struct {
	base   *url.URL
	client *http.Client
}

func newHTTPBackend(base *url.URL, client *http.Client) *httpBackend {
	if client == nil {
		client = http.DefaultClient
	}
	b := *base
	b.RawQuery = ""
	b.Fragment = ""
	return &httpBackend{base: &b, client: client}
}

func (h *httpBackend) location(key string) string {
	u := *h.base
	u.Path = path.Join("/", u.Path, key)
	u.RawPath = ""
	return u.String()
}

func (h *httpBackend) fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	loc := h.location(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", loc)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", loc)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.WithMessage(ErrNotFound, loc)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, errors.Errorf("fetch %s: unexpected status %s", loc, resp.Status)
	}
	return resp.Body, nil
}

func (h *httpBackend) String() string {
	return h.base.String()
}
