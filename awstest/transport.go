package awstest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// RewriteTransport redirects every request to Target while leaving the
// rest of the request intact. Tests use it to point requests addressed
// to amazonaws.com hosts at a local fake server.
type RewriteTransport struct {
	Target *url.URL
	Base   http.RoundTripper
}

func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.Target.Scheme
	clone.URL.Host = t.Target.Host
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// Client returns an HTTP client that delivers every request to srv,
// regardless of the host named in the request URL.
func Client(t testing.TB, srv *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("awstest: parse server url: %v", err)
	}
	return &http.Client{
		Transport: &RewriteTransport{Target: target, Base: srv.Client().Transport},
	}
}
