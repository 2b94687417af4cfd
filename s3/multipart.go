package s3

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/paws"
)

type initiateMultipartResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

type completeMultipartRequest struct {
	XMLName xml.Name           `xml:"CompleteMultipartUpload"`
	Parts   []completePartItem `xml:"Part"`
}

type completePartItem struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type listPartsResult struct {
	XMLName              xml.Name          `xml:"ListPartsResult"`
	IsTruncated          bool              `xml:"IsTruncated"`
	NextPartNumberMarker string            `xml:"NextPartNumberMarker"`
	Parts                []listPartContent `xml:"Part"`
}

type listPartContent struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
	Size       int64  `xml:"Size"`
}

// MultipartUpload coordinates one in-flight multipart upload: it tracks
// the entity tag of every uploaded part and settles the upload with
// Complete or Abort, after which the coordinator is spent. Not safe for
// concurrent use.
type MultipartUpload struct {
	client   *Client
	key      string
	uploadID string
	parts    []trackedPart
}

type trackedPart struct {
	number int
	etag   string
}

// StartMultipartUpload begins a multipart upload for key, carrying
// contentType into the final object, and returns the coordinator
// tracking it.
func (c *Client) StartMultipartUpload(ctx context.Context, key, contentType string) (*MultipartUpload, error) {
	resp, err := c.aws.Do(ctx, paws.Request{
		Method:      http.MethodPost,
		Path:        key,
		Query:       url.Values{"uploads": {"1"}},
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("start multipart upload %s: %w", key, err)
	}
	var result initiateMultipartResult
	if err := xml.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("start multipart upload %s: decode: %w", key, err)
	}
	if result.UploadID == "" {
		return nil, &paws.ProtocolError{Op: "s3.start_multipart_upload", Reason: "response contains no upload id"}
	}
	c.aws.LogDebug(ctx, "s3.multipart.start", "key", key, "upload_id", result.UploadID)
	return &MultipartUpload{client: c, key: key, uploadID: result.UploadID}, nil
}

// Key returns the object key the upload targets.
func (u *MultipartUpload) Key() string { return u.key }

// UploadID returns the remote upload token, empty once the upload has
// been completed or aborted.
func (u *MultipartUpload) UploadID() string { return u.uploadID }

func (u *MultipartUpload) active(op string) error {
	if u.uploadID == "" {
		return &paws.ValidationError{Op: op, Reason: "upload already completed or aborted"}
	}
	return nil
}

// UploadPart sends one numbered part and records the entity tag the
// remote assigned. Part numbers are caller-assigned; re-uploading a
// number replaces its recorded tag.
func (u *MultipartUpload) UploadPart(ctx context.Context, partNumber int, data []byte) error {
	if err := u.active("s3.upload_part"); err != nil {
		return err
	}
	resp, err := u.client.aws.Do(ctx, paws.Request{
		Method: http.MethodPut,
		Path:   u.key,
		Query: url.Values{
			"partNumber": {strconv.Itoa(partNumber)},
			"uploadId":   {u.uploadID},
		},
		Body: data,
	})
	if err != nil {
		return fmt.Errorf("upload part %d: %w", partNumber, err)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		return &paws.ProtocolError{Op: "s3.upload_part", Reason: "response contains no etag"}
	}
	u.record(partNumber, etag)
	u.client.aws.LogTrace(ctx, "s3.multipart.part", "key", u.key, "part", partNumber, "size", len(data))
	return nil
}

func (u *MultipartUpload) record(number int, etag string) {
	for i, p := range u.parts {
		if p.number == number {
			u.parts[i].etag = etag
			return
		}
	}
	u.parts = append(u.parts, trackedPart{number: number, etag: etag})
}

// Part is one uploaded part as reported by the remote.
type Part struct {
	Number int
	ETag   string
	Size   int64
}

// PartList is one page of the remote part listing.
type PartList struct {
	Parts                []Part
	IsTruncated          bool
	NextPartNumberMarker string
}

// ListParts fetches the remote view of the uploaded parts, up to
// maxParts per page, resuming after marker when non-empty. Purely
// informational; the tracked part set is not touched.
func (u *MultipartUpload) ListParts(ctx context.Context, maxParts int, marker string) (*PartList, error) {
	if err := u.active("s3.list_parts"); err != nil {
		return nil, err
	}
	query := url.Values{
		"uploadId":  {u.uploadID},
		"max-parts": {strconv.Itoa(maxParts)},
	}
	if marker != "" {
		query.Set("part-number-marker", marker)
	}
	resp, err := u.client.aws.Get(ctx, u.key, query)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	var result listPartsResult
	if err := xml.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("list parts: decode: %w", err)
	}
	list := &PartList{
		Parts:                make([]Part, 0, len(result.Parts)),
		IsTruncated:          result.IsTruncated,
		NextPartNumberMarker: result.NextPartNumberMarker,
	}
	for _, p := range result.Parts {
		list.Parts = append(list.Parts, Part{Number: p.PartNumber, ETag: strings.Trim(p.ETag, `"`), Size: p.Size})
	}
	return list, nil
}

// Complete assembles the object from the tracked parts, sorted by part
// number. At least one part must have been uploaded. On success the
// coordinator becomes terminal.
func (u *MultipartUpload) Complete(ctx context.Context) error {
	if err := u.active("s3.complete_multipart_upload"); err != nil {
		return err
	}
	if len(u.parts) == 0 {
		return &paws.ValidationError{Op: "s3.complete_multipart_upload", Reason: "no parts uploaded"}
	}
	sort.Slice(u.parts, func(i, j int) bool { return u.parts[i].number < u.parts[j].number })
	req := completeMultipartRequest{Parts: make([]completePartItem, 0, len(u.parts))}
	for _, p := range u.parts {
		req.Parts = append(req.Parts, completePartItem{PartNumber: p.number, ETag: p.etag})
	}
	body, err := xml.Marshal(req)
	if err != nil {
		return err
	}
	body = append([]byte(xml.Header), body...)
	if _, err := u.client.aws.Post(ctx, u.key, url.Values{"uploadId": {u.uploadID}}, body, "text/xml"); err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	u.client.aws.LogDebug(ctx, "s3.multipart.complete", "key", u.key, "upload_id", u.uploadID, "parts", len(u.parts))
	u.uploadID = ""
	return nil
}

// Abort cancels the upload and discards its parts remotely. Aborting an
// already settled upload is a validation error. On success the
// coordinator becomes terminal.
func (u *MultipartUpload) Abort(ctx context.Context) error {
	if err := u.active("s3.abort_multipart_upload"); err != nil {
		return err
	}
	_, err := u.client.aws.Do(ctx, paws.Request{
		Method: http.MethodDelete,
		Path:   u.key,
		Query:  url.Values{"uploadId": {u.uploadID}},
		Expect: http.StatusNoContent,
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	u.client.aws.LogDebug(ctx, "s3.multipart.abort", "key", u.key, "upload_id", u.uploadID)
	u.uploadID = ""
	return nil
}

// MultipartUpload runs fn with a fresh multipart upload for key and
// settles it afterwards. fn returning nil completes the upload when at
// least one part was uploaded and aborts it otherwise; fn returning an
// error aborts and surfaces fn's error unchanged, the abort's own
// failure only logged. A panic in fn aborts best-effort before
// unwinding. If fn already settled the upload itself, nothing more
// happens.
func (c *Client) MultipartUpload(ctx context.Context, key, contentType string, fn func(context.Context, *MultipartUpload) error) error {
	u, err := c.StartMultipartUpload(ctx, key, contentType)
	if err != nil {
		return err
	}
	settled := false
	defer func() {
		if settled || u.uploadID == "" {
			return
		}
		// Reached only when fn panicked.
		c.discardUpload(ctx, u)
	}()
	if err := fn(ctx, u); err != nil {
		if u.uploadID != "" {
			c.discardUpload(ctx, u)
		}
		settled = true
		return err
	}
	settled = true
	if u.uploadID == "" {
		return nil
	}
	if len(u.parts) == 0 {
		return u.Abort(ctx)
	}
	return u.Complete(ctx)
}

func (c *Client) discardUpload(ctx context.Context, u *MultipartUpload) {
	// The surrounding operation may have failed because ctx is done;
	// detach cancellation so the abort still reaches the remote.
	if err := u.Abort(context.WithoutCancel(ctx)); err != nil {
		c.aws.LogWarn(ctx, "s3.multipart.abort_failed", "key", u.key, "error", err)
	}
}
