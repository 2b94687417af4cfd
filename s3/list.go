package s3

import (
	"context"
	"encoding/xml"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"pkt.systems/paws"
)

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken"`
	Contents              []listContents `xml:"Contents"`
}

type listContents struct {
	Key          string    `xml:"Key"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	LastModified time.Time `xml:"LastModified"`
	StorageClass string    `xml:"StorageClass"`
}

func (c listContents) file() File {
	return File{
		Key:          c.Key,
		LastModified: c.LastModified,
		Size:         c.Size,
		ETag:         strings.Trim(c.ETag, `"`),
		StorageClass: c.StorageClass,
	}
}

// List lazily pages through the bucket, yielding objects matching
// prefix in listing order. Pages are fetched on demand, so breaking out
// of the loop stops further requests. A failed page, or a truncated
// page without a continuation token, yields its error and ends the
// sequence.
func (c *Client) List(ctx context.Context, prefix string) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		if strings.HasPrefix(prefix, "/") {
			yield(File{}, &paws.ValidationError{Op: "s3.list", Reason: `prefix must not start with "/"`})
			return
		}
		var token string
		for {
			query := url.Values{"list-type": {"2"}}
			if prefix != "" {
				query.Set("prefix", prefix)
			}
			if token != "" {
				query.Set("continuation-token", token)
			}
			resp, err := c.aws.Get(ctx, "/", query)
			if err != nil {
				yield(File{}, fmt.Errorf("list objects: %w", err))
				return
			}
			var page listBucketResult
			if err := xml.Unmarshal(resp.Body, &page); err != nil {
				yield(File{}, fmt.Errorf("list objects: decode page: %w", err))
				return
			}
			c.aws.LogTrace(ctx, "s3.list.page", "prefix", prefix, "keys", len(page.Contents), "truncated", page.IsTruncated)
			for _, obj := range page.Contents {
				if !yield(obj.file(), nil) {
					return
				}
			}
			if !page.IsTruncated {
				return
			}
			if page.NextContinuationToken == "" {
				yield(File{}, &paws.ProtocolError{Op: "s3.list", Reason: "truncated listing without continuation token"})
				return
			}
			token = page.NextContinuationToken
		}
	}
}
