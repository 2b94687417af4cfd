package paws

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/paws/internal/clock"
)

var testSignAt = time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, srv *httptest.Server, service string, opts ...Option) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	cfg := Config{
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		Region:    "us-east-1",
		Host:      u.Host,
		Scheme:    "http",
	}
	opts = append([]Option{WithClock(clock.NewManual(testSignAt))}, opts...)
	c, err := NewClient(srv.Client(), cfg, service, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestDoSignsRequest(t *testing.T) {
	t.Parallel()
	var (
		mu             sync.Mutex
		gotURI         string
		gotAuth        string
		gotDate        string
		gotSHA         string
		gotMD5         string
		gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotURI = r.RequestURI
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.Header.Get("X-Amz-Date")
		gotSHA = r.Header.Get("X-Amz-Content-Sha256")
		gotMD5 = r.Header.Get("Content-Md5")
		gotContentType = r.Header.Get("Content-Type")
		mu.Unlock()
		io.WriteString(w, "<ok/>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "s3")
	resp, err := c.Do(context.Background(), Request{
		Path:  "/my key.txt",
		Query: url.Values{"b": {"2"}, "a": {"1/x"}},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "<ok/>" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotURI != "/my%20key.txt?a=1%2Fx&b=2" {
		t.Fatalf("wire form not canonical: %q", gotURI)
	}
	wantPrefix := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260214/us-east-1/s3/aws4_request," +
		"SignedHeaders=content-md5;content-type;host;x-amz-date,Signature="
	if !strings.HasPrefix(gotAuth, wantPrefix) {
		t.Fatalf("authorization header %q lacks prefix %q", gotAuth, wantPrefix)
	}
	if sig := strings.TrimPrefix(gotAuth, wantPrefix); !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(sig) {
		t.Fatalf("signature %q is not 64 hex chars", sig)
	}
	if gotDate != "20260214T103000Z" {
		t.Fatalf("x-amz-date %q", gotDate)
	}
	emptySHA := sha256.Sum256(nil)
	if gotSHA != hex.EncodeToString(emptySHA[:]) {
		t.Fatalf("payload hash %q", gotSHA)
	}
	if gotMD5 != "1B2M2Y8AsgTpgAmY7PhCfg==" {
		t.Fatalf("content-md5 %q", gotMD5)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content-type %q", gotContentType)
	}
}

func TestPostSignsBody(t *testing.T) {
	t.Parallel()
	body := []byte("Action=DoThing&Version=1")
	var (
		mu      sync.Mutex
		gotBody []byte

		gotMD5, gotSHA, gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		read, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = read
		gotMD5 = r.Header.Get("Content-Md5")
		gotSHA = r.Header.Get("X-Amz-Content-Sha256")
		gotContentType = r.Header.Get("Content-Type")
		mu.Unlock()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "ses")
	if _, err := c.Post(context.Background(), "/", nil, body, "application/x-www-form-urlencoded"); err != nil {
		t.Fatalf("post: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body %q", gotBody)
	}
	md5sum := md5.Sum(body)
	if gotMD5 != base64.StdEncoding.EncodeToString(md5sum[:]) {
		t.Fatalf("content-md5 %q", gotMD5)
	}
	shasum := sha256.Sum256(body)
	if gotSHA != hex.EncodeToString(shasum[:]) {
		t.Fatalf("payload hash %q", gotSHA)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content-type %q", gotContentType)
	}
}

func TestDoExtraHeaders(t *testing.T) {
	t.Parallel()
	var (
		mu                   sync.Mutex
		gotAccept, gotTarget string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAccept = r.Header.Get("Accept")
		gotTarget = r.Header.Get("X-Amz-Target")
		mu.Unlock()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "dynamodb")
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("X-Amz-Target", "DynamoDB_20120810.GetItem")
	if _, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/", Header: header}); err != nil {
		t.Fatalf("do: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAccept != "application/json" {
		t.Fatalf("accept %q", gotAccept)
	}
	if gotTarget != "DynamoDB_20120810.GetItem" {
		t.Fatalf("x-amz-target %q", gotTarget)
	}
}

func TestDoUnexpectedStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "s3")
	_, err := c.Get(context.Background(), "/secret.txt", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusForbidden {
		t.Fatalf("status %d", reqErr.Status)
	}
	if reqErr.Method != http.MethodGet {
		t.Fatalf("method %q", reqErr.Method)
	}
	if !strings.Contains(string(reqErr.Body), "AccessDenied") {
		t.Fatalf("body %q", reqErr.Body)
	}
	if !strings.Contains(reqErr.Error(), "403") {
		t.Fatalf("error %q lacks status", reqErr.Error())
	}
	if pretty := reqErr.PrettyBody(); !strings.Contains(pretty, "\n") {
		t.Fatalf("expected indented XML, got %q", pretty)
	}
}

func TestDoExpectOverride(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "s3")
	resp, err := c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/gone.txt", Expect: http.StatusNoContent})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusNoContent || len(resp.Body) != 0 {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
}

func TestEndpointPathPrefix(t *testing.T) {
	t.Parallel()
	var (
		mu     sync.Mutex
		gotURI string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotURI = r.RequestURI
		mu.Unlock()
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	cfg := Config{
		AccessKey: "k",
		SecretKey: "s",
		Region:    "us-east-1",
		Host:      u.Host + "/bucket",
		Scheme:    "http",
	}
	c, err := NewClient(srv.Client(), cfg, "s3", WithClock(clock.NewManual(testSignAt)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if want := "http://" + u.Host + "/bucket"; c.Endpoint() != want {
		t.Fatalf("endpoint %q, want %q", c.Endpoint(), want)
	}
	if _, err := c.Get(context.Background(), "/file.txt", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotURI != "/bucket/file.txt" {
		t.Fatalf("uri %q", gotURI)
	}
}

func TestURLCanonicalForms(t *testing.T) {
	t.Parallel()
	cfg := Config{AccessKey: "k", SecretKey: "s", Region: "r", Host: "bucket.example.com"}
	c, err := NewClient(DefaultHTTPClient(), cfg, "s3")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	u := c.URL("/a b+c.txt", url.Values{"x y": {"p q"}})
	if got := u.String(); got != "https://bucket.example.com/a%20b%2Bc.txt?x%20y=p%20q" {
		t.Fatalf("url %q", got)
	}
	if u = c.URL("", nil); u.String() != "https://bucket.example.com/" {
		t.Fatalf("root url %q", u)
	}
}

func TestNewClientDefaultEndpoints(t *testing.T) {
	t.Parallel()
	cfg := Config{AccessKey: "k", SecretKey: "s", Region: "us-east-1"}
	c, err := NewClient(nil, cfg, "ses")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Endpoint() != "https://email.us-east-1.amazonaws.com" {
		t.Fatalf("ses endpoint %q", c.Endpoint())
	}
	c, err = NewClient(nil, Config{AccessKey: "k", SecretKey: "s", Region: "eu-west-1"}, "sqs")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Endpoint() != "https://sqs.eu-west-1.amazonaws.com" {
		t.Fatalf("sqs endpoint %q", c.Endpoint())
	}
}

func TestNewClientClearsTimeout(t *testing.T) {
	t.Parallel()
	hc := &http.Client{Timeout: 3 * time.Second}
	_, err := NewClient(hc, Config{AccessKey: "k", SecretKey: "s", Region: "r"}, "sqs")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if hc.Timeout != 0 {
		t.Fatalf("expected client timeout cleared, got %v", hc.Timeout)
	}
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(nil, Config{SecretKey: "s", Region: "r"}, "s3"); err == nil {
		t.Fatalf("expected config error")
	}
	if _, err := NewClient(nil, Config{AccessKey: "k", SecretKey: "s", Region: "r"}, ""); err == nil {
		t.Fatalf("expected service error")
	}
}

func TestRawPostFormShape(t *testing.T) {
	t.Parallel()
	var (
		mu       sync.Mutex
		order    []string
		fileName string
		fileType string
		fileBody []byte
		gotAuth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			order = append(order, part.FormName())
			if part.FormName() == "file" {
				fileName = part.FileName()
				fileType = part.Header.Get("Content-Type")
				fileBody, _ = io.ReadAll(part)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "s3")
	fields := map[string]string{
		"Key":          "up.txt",
		"Content-Type": "text/plain",
		"Policy":       "abc",
	}
	file := &FormFile{Name: "up.txt", ContentType: "text/plain", Content: []byte("payload")}
	resp, err := c.RawPost(context.Background(), srv.URL+"/", http.StatusNoContent, fields, file)
	if err != nil {
		t.Fatalf("raw post: %v", err)
	}
	if resp.Status != http.StatusNoContent {
		t.Fatalf("status %d", resp.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "" {
		t.Fatalf("raw post must not be header-signed, got %q", gotAuth)
	}
	want := []string{"Content-Type", "Key", "Policy", "file"}
	if len(order) != len(want) {
		t.Fatalf("part order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("part order %v, want %v", order, want)
		}
	}
	if fileName != "up.txt" || fileType != "text/plain" || string(fileBody) != "payload" {
		t.Fatalf("file part %q %q %q", fileName, fileType, fileBody)
	}
}

func TestRawPostUnexpectedStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "s3")
	_, err := c.RawPost(context.Background(), srv.URL+"/", http.StatusNoContent, nil, nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusForbidden {
		t.Fatalf("status %d", reqErr.Status)
	}
}

func TestDoLogsWithCorrelationID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var logBuf bytes.Buffer
	logger := pslog.NewWithOptions(context.Background(), &logBuf, pslog.Options{
		Mode:             pslog.ModeStructured,
		DisableTimestamp: true,
		NoColor:          true,
		MinLevel:         pslog.TraceLevel,
	})
	c := newTestClient(t, srv, "s3", WithLogger(logger))
	ctx := WithCorrelationID(context.Background(), "req-42")
	if _, err := c.Get(ctx, "/x", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	out := logBuf.String()
	if !strings.Contains(out, "aws.request") {
		t.Fatalf("missing request event: %s", out)
	}
	if !strings.Contains(out, "req-42") {
		t.Fatalf("missing correlation id: %s", out)
	}
}
