package paws

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/paws/awsv4"
)

// Transport pool tuning for bursty bulk traffic such as parallel delete
// batches against a single host.
const (
	DefaultMaxIdleConns        = 256
	DefaultMaxIdleConnsPerHost = 128
)

// DefaultHTTPClient returns an instrumented HTTP client: a clone of the
// default transport with a deeper idle pool, wrapped in otelhttp so
// spans propagate, and no client-level timeout. Deadlines belong to ctx;
// a client timeout would cut long polls and large transfers short.
func DefaultHTTPClient() *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		tr := base.Clone()
		applyDefaultTransportTuning(tr)
		rt = tr
	}
	return &http.Client{Transport: otelhttp.NewTransport(rt)}
}

func applyDefaultTransportTuning(tr *http.Transport) {
	if tr == nil {
		return
	}
	if tr.MaxIdleConns < DefaultMaxIdleConns {
		tr.MaxIdleConns = DefaultMaxIdleConns
	}
	if tr.MaxIdleConnsPerHost < DefaultMaxIdleConnsPerHost {
		tr.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
}

// SigningTransport header-signs every outbound request against the
// request's own URL before delegating to Base. It serves clients whose
// target hosts are discovered at runtime, such as queue URLs returned by
// the queue service, where a fixed-endpoint client cannot be prepared in
// advance.
type SigningTransport struct {
	// Base performs the exchange, http.DefaultTransport when nil.
	Base http.RoundTripper
	// Signer computes the signatures.
	Signer *awsv4.Signer
	// Now supplies signing instants, the wall clock when nil.
	Now func() time.Time
}

// RoundTrip drains the request body, rewrites path and query into the
// canonical signed form, signs a clone, and forwards it. The original
// request is not modified apart from consuming its body, per the
// RoundTripper contract.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Signer == nil {
		return nil, fmt.Errorf("paws: signing transport requires a signer")
	}
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.URL.RawPath = awsv4.EscapePath(clone.URL.Path)
	clone.URL.RawQuery = awsv4.CanonicalQuery(clone.URL.Query())

	now := time.Now().UTC()
	if t.Now != nil {
		now = t.Now()
	}
	if err := t.Signer.SignRequest(clone, body, now); err != nil {
		return nil, err
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
