package s3

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"pkt.systems/paws"
)

// Config configures the object store client.
type Config struct {
	paws.Config
	// Bucket is the bucket name. A name containing a dot is treated as a
	// CNAME-style custom domain and becomes the endpoint host itself;
	// otherwise the bucket addresses its regional virtual host.
	Bucket string
}

// Validate normalizes the config and derives the endpoint host from the
// bucket when none is set.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	c.Bucket = strings.TrimSpace(c.Bucket)
	if c.Bucket == "" {
		return fmt.Errorf("config: bucket is required")
	}
	if c.Host == "" {
		if strings.Contains(c.Bucket, ".") {
			c.Host = c.Bucket
		} else {
			c.Host = c.Bucket + ".s3." + c.Region + ".amazonaws.com"
		}
	}
	return nil
}

// Client talks to one bucket.
type Client struct {
	aws    *paws.Client
	bucket string
}

// New builds an object store client for the configured bucket. A nil
// httpClient falls back to paws.DefaultHTTPClient().
func New(httpClient *http.Client, cfg Config, opts ...paws.Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("paws: %w", err)
	}
	aws, err := paws.NewClient(httpClient, cfg.Config, "s3", opts...)
	if err != nil {
		return nil, err
	}
	return &Client{aws: aws, bucket: cfg.Bucket}, nil
}

// Endpoint returns the bucket endpoint the client targets.
func (c *Client) Endpoint() string { return c.aws.Endpoint() }

// File is one stored object as reported by a listing.
type File struct {
	Key          string
	LastModified time.Time
	Size         int64
	// ETag is the entity tag with its surrounding quotes stripped.
	ETag         string
	StorageClass string
}

// Object identifies a stored object for deletion: either a bare Key or
// a File from a listing.
type Object interface {
	ObjectKey() string
}

// Key names an object by its key string.
type Key string

// ObjectKey returns the key itself.
func (k Key) ObjectKey() string { return string(k) }

// ObjectKey returns the listed object's key.
func (f File) ObjectKey() string { return f.Key }

// Download fetches an object with header authentication.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.aws.Get(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	c.aws.LogTrace(ctx, "s3.download", "key", key, "size", len(resp.Body))
	return resp.Body, nil
}

// Upload stores content at key through a freshly issued POST policy
// form, the same browser-upload path SignedUpload prepares for remote
// clients. An empty contentType falls back to the key's extension, then
// to application/octet-stream.
func (c *Client) Upload(ctx context.Context, key string, content []byte, contentType string) error {
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	dir, filename := splitKey(key)
	signed, err := c.SignedUpload(SignedUploadOptions{
		Path:        dir,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Expires:     c.aws.Now().Add(30 * time.Minute),
	})
	if err != nil {
		return err
	}
	file := &paws.FormFile{Name: filename, ContentType: contentType, Content: content}
	if _, err := c.aws.RawPost(ctx, signed.URL, http.StatusNoContent, signed.Fields, file); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	c.aws.LogDebug(ctx, "s3.upload", "key", key, "size", len(content), "content_type", contentType)
	return nil
}

func splitKey(key string) (dir, filename string) {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i+1], key[i+1:]
	}
	return "", key
}
