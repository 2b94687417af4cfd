package s3

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/paws"
	"pkt.systems/paws/awsv4"
)

// Download link expiries land on 100 second epoch boundaries, keeping
// the validity window predictable for caches in front of the signing
// service.
const expiryRounding = 100

// SignedDownloadURL authenticates a GET for key in the query string.
// The link expires at the next 100 second epoch boundary at or after
// now+maxAge, so a link issued anywhere within one window carries the
// same expiry instant; the effective lifetime is capped at seven days.
// version, when set, is appended as an unsigned v parameter for cache
// busting. maxAge must be within [1s, 7d].
func (c *Client) SignedDownloadURL(key string, maxAge time.Duration, version string) (string, error) {
	if maxAge < awsv4.MinExpires || maxAge > awsv4.MaxExpires {
		return "", &paws.ValidationError{
			Op:     "s3.signed_download_url",
			Reason: fmt.Sprintf("max age must be within [1s, 7d], got %s", maxAge),
		}
	}
	if strings.HasPrefix(key, "/") {
		return "", &paws.ValidationError{Op: "s3.signed_download_url", Reason: `key must not start with "/"`}
	}
	now := c.aws.Now()
	boundary := now.Add(maxAge).Unix()
	if rem := boundary % expiryRounding; rem != 0 {
		boundary += expiryRounding - rem
	}
	expires := time.Duration(boundary-now.Unix()) * time.Second
	if expires > awsv4.MaxExpires {
		expires = awsv4.MaxExpires
	}
	signed, err := c.aws.Signer().PresignURL(http.MethodGet, c.aws.URL(key, nil), expires, now)
	if err != nil {
		return "", err
	}
	out := signed.String()
	if version != "" {
		out += "&v=" + url.QueryEscape(version)
	}
	return out, nil
}

// SignedUploadOptions configures a browser-POST upload policy.
type SignedUploadOptions struct {
	// Path is the key prefix for the upload. It must end with "/" and
	// must not start with "/"; empty uploads to the bucket root.
	Path string
	// Filename is appended to Path to form the object key.
	Filename string
	// ContentType is the exact content type the submitted form must
	// declare.
	ContentType string
	// Size is the exact content length the policy permits.
	Size int64
	// DisableContentDisposition omits the attachment disposition field.
	// By default the uploaded object is served as an attachment named
	// after Filename.
	DisableContentDisposition bool
	// Expires bounds the policy validity, 60 seconds from now when zero.
	Expires time.Time
}

// SignedUpload is a ready-to-submit browser upload form.
type SignedUpload struct {
	// URL is the form action, the bucket endpoint root.
	URL string
	// Fields are the multipart form fields to submit before the file
	// part.
	Fields map[string]string
}

const policyTimeFormat = "2006-01-02T15:04:05Z"

// SignedUpload builds a POST policy permitting one upload of an exact
// key, content type, and size. The policy is signed with the same key
// derivation chain as header signing; the form carries the credential,
// date, and signature, so the submitting client needs no secrets.
func (c *Client) SignedUpload(opts SignedUploadOptions) (*SignedUpload, error) {
	if opts.Path != "" && !strings.HasSuffix(opts.Path, "/") {
		return nil, &paws.ValidationError{Op: "s3.signed_upload", Reason: `path must end with "/"`}
	}
	if strings.HasPrefix(opts.Path, "/") {
		return nil, &paws.ValidationError{Op: "s3.signed_upload", Reason: `path must not start with "/"`}
	}
	if opts.Filename == "" {
		return nil, &paws.ValidationError{Op: "s3.signed_upload", Reason: "filename is required"}
	}

	key := opts.Path + opts.Filename
	now := c.aws.Now()
	expires := opts.Expires
	if expires.IsZero() {
		expires = now.Add(60 * time.Second)
	}
	credential := c.aws.Signer().Credential(now)
	amzDate := now.UTC().Format(awsv4.TimeFormat)

	conditions := []any{
		map[string]string{"bucket": c.bucket},
		map[string]string{"key": key},
		map[string]string{"content-type": opts.ContentType},
		[]any{"content-length-range", opts.Size, opts.Size},
	}
	fields := map[string]string{
		"Key":          key,
		"Content-Type": opts.ContentType,
	}
	if !opts.DisableContentDisposition {
		disp := `attachment; filename="` + opts.Filename + `"`
		conditions = append(conditions, map[string]string{"Content-Disposition": disp})
		fields["Content-Disposition"] = disp
	}
	conditions = append(conditions,
		map[string]string{"x-amz-credential": credential},
		map[string]string{"x-amz-algorithm": awsv4.Algorithm},
		map[string]string{"x-amz-date": amzDate},
	)

	policyJSON, err := json.Marshal(map[string]any{
		"expiration": expires.UTC().Format(policyTimeFormat),
		"conditions": conditions,
	})
	if err != nil {
		return nil, err
	}
	policy := base64.StdEncoding.EncodeToString(policyJSON)

	fields["Policy"] = policy
	fields["X-Amz-Algorithm"] = awsv4.Algorithm
	fields["X-Amz-Credential"] = credential
	fields["X-Amz-Date"] = amzDate
	fields["X-Amz-Signature"] = c.aws.Signer().SignString(policy, now)
	return &SignedUpload{URL: c.aws.Endpoint() + "/", Fields: fields}, nil
}
