package paws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"pkt.systems/paws/awsv4"
	"pkt.systems/paws/internal/clock"
	"pkt.systems/paws/internal/version"
	"pkt.systems/pslog"
)

// Client issues SigV4-signed requests against a single service endpoint.
// Service packages compose it and speak their wire dialects on top. It is
// safe for concurrent use.
type Client struct {
	httpClient *http.Client
	signer     *awsv4.Signer
	scheme     string
	host       string
	pathPrefix string
	service    string
	clk        clock.Clock
	logger     pslog.Base
}

// Option customises client construction.
type Option func(*Client)

// WithLogger supplies a logger for request diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) {
		if logger == nil {
			c.logger = pslog.NoopLogger()
			return
		}
		c.logger = logger
	}
}

// WithClock overrides the time source used for signing timestamps and
// presigned URL expiry arithmetic. Tests pin it to get deterministic
// signatures.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// NewClient builds a signing client for service from cfg. The service
// name scopes every signature and selects the default regional host. A
// nil httpClient falls back to DefaultHTTPClient(); a caller-supplied
// client has any client-level timeout cleared so long polls and large
// transfers are governed by ctx instead.
func NewClient(httpClient *http.Client, cfg Config, service string, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("paws: %w", err)
	}
	signer, err := awsv4.New(cfg.Credentials(), cfg.Region, service)
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost(service, cfg.Region)
	}
	var prefix string
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host, prefix = host[:i], "/"+host[i+1:]
	}
	c := &Client{
		httpClient: httpClient,
		signer:     signer,
		scheme:     cfg.Scheme,
		host:       host,
		pathPrefix: prefix,
		service:    service,
		clk:        clock.Real{},
		logger:     pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = DefaultHTTPClient()
	}
	if c.httpClient.Timeout != 0 {
		c.httpClient.Timeout = 0
	}
	c.LogInfo(context.Background(), "aws.client.init", "service", service, "endpoint", c.Endpoint())
	return c, nil
}

// Signer exposes the request signer for presigned URLs and upload
// policies.
func (c *Client) Signer() *awsv4.Signer { return c.signer }

// Now returns the current instant from the configured clock. Callers
// that both round and sign a timestamp sample it once through here.
func (c *Client) Now() time.Time { return c.clk.Now() }

// Endpoint returns the base the client targets, scheme://host plus any
// configured path prefix.
func (c *Client) Endpoint() string {
	return c.scheme + "://" + c.host + c.pathPrefix
}

// URL resolves a service path against the endpoint. The path is taken
// literally (object keys with spaces or UTF-8 are fine) and percent-
// encoded exactly as it is signed; the query is rendered in canonical
// sorted form so the wire bytes match the signature.
func (c *Client) URL(path string, query url.Values) *url.URL {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := c.pathPrefix + path
	u := &url.URL{
		Scheme:  c.scheme,
		Host:    c.host,
		Path:    full,
		RawPath: awsv4.EscapePath(full),
	}
	if len(query) > 0 {
		u.RawQuery = awsv4.CanonicalQuery(query)
	}
	return u
}

// Request describes one signed exchange.
type Request struct {
	// Method is the HTTP method, GET when empty.
	Method string
	// Path is the endpoint-relative path, "/" when empty.
	Path string
	// Query carries request parameters. They are signed and sent in
	// canonical sorted form.
	Query url.Values
	// Body is the payload; nil signs as zero bytes.
	Body []byte
	// ContentType sets the signed content-type header. Empty signs and
	// sends application/x-www-form-urlencoded.
	ContentType string
	// Header carries extra unsigned headers such as Accept or
	// X-Amz-Target.
	Header http.Header
	// Expect is the status that counts as success, 200 when zero.
	Expect int
}

// Response is a fully drained HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do signs and sends one request, returning the drained response. A
// completed exchange with any status other than the expected one returns
// a *RequestError carrying the response body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	expect := req.Expect
	if expect == 0 {
		expect = http.StatusOK
	}
	u := c.URL(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for name, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if err := c.signer.SignRequest(httpReq, req.Body, c.clk.Now()); err != nil {
		return nil, err
	}
	return c.send(ctx, httpReq, expect)
}

// Get issues a signed GET expecting 200.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a signed POST expecting 200.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body []byte, contentType string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body, ContentType: contentType})
}

// FormFile is the file part of a browser-style upload form.
type FormFile struct {
	// Name is the filename reported in the part header.
	Name string
	// ContentType labels the part, application/octet-stream when empty.
	ContentType string
	// Content is the file payload.
	Content []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// RawPost sends an unsigned multipart/form-data POST to an absolute URL.
// Policy-upload endpoints read authentication from the form itself, so no
// header signing happens here. Fields are written in sorted order and the
// file part, when present, goes last; the remote ignores anything after
// the file. A completed exchange with any status other than expect
// returns a *RequestError.
func (c *Client) RawPost(ctx context.Context, rawURL string, expect int, fields map[string]string, file *FormFile) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, err
		}
	}
	if file != nil {
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(ctx, httpReq, expect)
}

func (c *Client) send(ctx context.Context, httpReq *http.Request, expect int) (*Response, error) {
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", version.UserAgent())
	}
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.LogDebug(ctx, "aws.request.transport_error", "service", c.service, "method", httpReq.Method, "url", httpReq.URL.String(), "error", err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.LogDebug(ctx, "aws.request.read_error", "service", c.service, "method", httpReq.Method, "url", httpReq.URL.String(), "error", err)
		return nil, err
	}
	c.LogTrace(ctx, "aws.request", "service", c.service, "method", httpReq.Method, "url", httpReq.URL.String(), "status", resp.StatusCode, "dur", time.Since(start))
	if resp.StatusCode != expect {
		c.LogDebug(ctx, "aws.request.unexpected_status", "service", c.service, "method", httpReq.Method, "url", httpReq.URL.String(), "status", resp.StatusCode, "want", expect)
		return nil, &RequestError{
			Method: httpReq.Method,
			URL:    httpReq.URL.String(),
			Status: resp.StatusCode,
			Header: resp.Header,
			Body:   body,
		}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func hasKey(keyvals []any, target string) bool {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok && key == target {
			return true
		}
	}
	return false
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	if ctx == nil {
		return keyvals
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" || hasKey(keyvals, "cid") {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	enriched = append(enriched, "cid", cid)
	return enriched
}

// LogTrace emits a trace event through the client logger, attaching the
// correlation identifier carried by ctx. Service packages log through
// these so every event carries the same fields.
func (c *Client) LogTrace(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Trace(msg, keyvals...)
}

// LogDebug emits a debug event through the client logger.
func (c *Client) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Debug(msg, keyvals...)
}

// LogInfo emits an info event through the client logger.
func (c *Client) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Info(msg, keyvals...)
}

// LogWarn emits a warning through the client logger.
func (c *Client) LogWarn(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Warn(msg, keyvals...)
}

// LogError emits an error event through the client logger.
func (c *Client) LogError(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Error(msg, keyvals...)
}
