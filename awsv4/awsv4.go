package awsv4

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Algorithm identifies the signing scheme in Authorization headers and
	// presigned query parameters.
	Algorithm = "AWS4-HMAC-SHA256"
	// TimeFormat renders signing instants, compact ISO-8601 basic with a
	// trailing Z.
	TimeFormat = "20060102T150405Z"
	// DateFormat renders the date stamp used in credential scopes.
	DateFormat = "20060102"
	// UnsignedPayload marks requests whose body is not available at signing
	// time, such as presigned URLs.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
	// EmptyStringSHA256 is the hex SHA-256 of zero bytes.
	EmptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	scopeSuffix        = "aws4_request"
	defaultContentType = "application/x-www-form-urlencoded"

	// MinExpires and MaxExpires bound presigned URL validity. The upper
	// bound is seven days, enforced remotely as well.
	MinExpires = 1 * time.Second
	MaxExpires = 604800 * time.Second
)

// Credentials carries the key pair used to sign requests. The secret is
// never logged and never serialized.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Validate rejects incomplete credentials.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccessKeyID) == "" {
		return fmt.Errorf("awsv4: access key id required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("awsv4: secret access key required")
	}
	return nil
}

// Signer computes V4 signatures for one (credentials, region, service)
// scope. It is immutable and safe for concurrent use. Signing is a pure
// function of the request and the supplied instant; callers capture the
// clock once per request attempt so the timestamp inside the signature
// matches the timestamp on the wire.
type Signer struct {
	creds   Credentials
	region  string
	service string
}

// New constructs a Signer. Empty credentials, region, or service are
// programmer errors and fail fast.
func New(creds Credentials, region, service string) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("awsv4: region required")
	}
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("awsv4: service required")
	}
	return &Signer{creds: creds, region: region, service: service}, nil
}

// Region returns the signing region.
func (s *Signer) Region() string { return s.region }

// Service returns the signing service scope.
func (s *Signer) Service() string { return s.service }

// Scope returns the credential scope for the given instant:
// datestamp/region/service/aws4_request.
func (s *Signer) Scope(now time.Time) string {
	return strings.Join([]string{
		now.UTC().Format(DateFormat), s.region, s.service, scopeSuffix,
	}, "/")
}

// Credential returns the access key joined with the credential scope, the
// form embedded in Authorization headers and X-Amz-Credential parameters.
func (s *Signer) Credential(now time.Time) string {
	return s.creds.AccessKeyID + "/" + s.Scope(now)
}

// Sign computes the signature over a canonical request assembled from the
// given method, URL, header set, and payload hash. Header names are
// lowercased and sorted; the returned signedHeaders string is the sorted
// names joined with ";". The URL's RawQuery must already be in canonical
// form (sorted, AWS-encoded); CanonicalQuery produces it.
func (s *Signer) Sign(method string, u *url.URL, headers map[string]string, payloadHash string, now time.Time) (signedHeaders, signature string) {
	creq, signedHeaders := s.canonicalRequest(method, u, headers, payloadHash)
	return signedHeaders, s.SignString(s.stringToSign(creq, now), now)
}

// SignString runs the HMAC key-derivation chain for the given instant and
// signs an arbitrary string, returning lowercase hex. POST upload policies
// use this directly with the base64 policy document as the string to sign.
func (s *Signer) SignString(stringToSign string, now time.Time) string {
	key := deriveKey(s.creds.SecretAccessKey, now.UTC().Format(DateFormat), s.region, s.service)
	return hex.EncodeToString(hmacSHA256(key, stringToSign))
}

// SignRequest header-signs req in place. The signed set is content-md5,
// content-type, host, and x-amz-date; the payload hash rides along as an
// unsigned x-amz-content-sha256 header. A nil body signs as zero bytes.
// Requests without a Content-Type sign and send the form-urlencoded
// default. The caller must not change method, URL, query, body, or any of
// the signed headers after this call.
func (s *Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	if req.URL == nil || req.URL.Host == "" {
		return fmt.Errorf("awsv4: request host required")
	}
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	md5sum := md5.Sum(body)
	payloadHash := hexSHA256(body)

	// Alphabetical by name; the canonical request depends on it.
	headers := map[string]string{
		"content-md5":  base64.StdEncoding.EncodeToString(md5sum[:]),
		"content-type": contentType,
		"host":         req.URL.Host,
		"x-amz-date":   now.UTC().Format(TimeFormat),
	}
	signedHeaders, signature := s.Sign(req.Method, req.URL, headers, payloadHash, now)

	for name, value := range headers {
		if name == "host" {
			continue
		}
		req.Header.Set(name, value)
	}
	req.Host = req.URL.Host
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s,SignedHeaders=%s,Signature=%s",
		Algorithm, s.Credential(now), signedHeaders, signature))
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	return nil
}

// PresignURL returns a copy of u carrying query-string authentication:
// X-Amz-Algorithm, X-Amz-Credential, X-Amz-Date, X-Amz-Expires, and
// X-Amz-SignedHeaders=host are merged into the query before signing with
// the UNSIGNED-PAYLOAD marker, then X-Amz-Signature is appended last.
// Expiry must be within [1s, 604800s].
func (s *Signer) PresignURL(method string, u *url.URL, expires time.Duration, now time.Time) (*url.URL, error) {
	if expires < MinExpires || expires > MaxExpires {
		return nil, fmt.Errorf("awsv4: presign expiry must be within [1s, 7d], got %s", expires)
	}
	seconds := int64(expires / time.Second)
	now = now.UTC()

	q := u.Query()
	q.Set("X-Amz-Algorithm", Algorithm)
	q.Set("X-Amz-Credential", s.Credential(now))
	q.Set("X-Amz-Date", now.Format(TimeFormat))
	q.Set("X-Amz-Expires", strconv.FormatInt(seconds, 10))
	q.Set("X-Amz-SignedHeaders", "host")

	signed := *u
	signed.RawQuery = CanonicalQuery(q)
	_, signature := s.Sign(method, &signed, map[string]string{"host": u.Host}, UnsignedPayload, now)
	signed.RawQuery += "&X-Amz-Signature=" + signature
	return &signed, nil
}

func (s *Signer) canonicalRequest(method string, u *url.URL, headers map[string]string, payloadHash string) (creq, signedHeaders string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	signedHeaders = strings.Join(names, ";")

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(strings.TrimSpace(headers[name]))
		canonicalHeaders.WriteByte('\n')
	}

	creq = strings.Join([]string{
		method,
		EscapePath(u.Path),
		u.RawQuery,
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")
	return creq, signedHeaders
}

func (s *Signer) stringToSign(canonicalRequest string, now time.Time) string {
	return strings.Join([]string{
		Algorithm,
		now.UTC().Format(TimeFormat),
		s.Scope(now),
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")
}

func deriveKey(secret, datestamp, region, service string) []byte {
	key := hmacSHA256([]byte("AWS4"+secret), datestamp)
	key = hmacSHA256(key, region)
	key = hmacSHA256(key, service)
	return hmacSHA256(key, scopeSuffix)
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func hexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EscapePath percent-encodes a URL path for the canonical request:
// unreserved characters and "/" stay literal, everything else is encoded
// as uppercase %XX. The wire request must use the same form, so clients
// set it as the escaped path of outgoing URLs.
func EscapePath(path string) string {
	if path == "" {
		return "/"
	}
	return escape(path, true)
}

// CanonicalQuery renders query parameters in canonical form: names sorted
// bytewise, repeated values sorted, each name and value percent-encoded
// with space as %20 (never "+"). The result is both the signed string and
// the query the request must carry.
func CanonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), q[name]...)
		sort.Strings(values)
		for _, value := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(name, false))
			b.WriteByte('=')
			b.WriteString(escape(value, false))
		}
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func escape(s string, keepSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		case c == '/' && keepSlash:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xf])
		}
	}
	return b.String()
}
