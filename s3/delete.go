package s3

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Bulk delete accepts at most 1000 keys per request.
const deleteChunkSize = 1000

const deleteXMLNS = "http://s3.amazonaws.com/doc/2006-03-01/"

type deleteRequest struct {
	XMLName xml.Name       `xml:"Delete"`
	XMLNS   string         `xml:"xmlns,attr"`
	Objects []deleteObject `xml:"Object"`
}

type deleteObject struct {
	Key string `xml:"Key"`
}

type deleteResult struct {
	XMLName xml.Name       `xml:"DeleteResult"`
	Deleted []deleteObject `xml:"Deleted"`
}

// Delete removes objects in bulk, splitting the keys into chunks of at
// most 1000 and sending every chunk concurrently. A chunk failure does
// not cancel the chunks already in flight; after all settle, the first
// error is returned. On success the returned keys are the ones the
// responses reported deleted, in chunk order.
func (c *Client) Delete(ctx context.Context, objects ...Object) ([]string, error) {
	if len(objects) == 0 {
		return nil, nil
	}
	chunks := make([][]Object, 0, (len(objects)+deleteChunkSize-1)/deleteChunkSize)
	for start := 0; start < len(objects); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(objects))
		chunks = append(chunks, objects[start:end])
	}
	deleted := make([][]string, len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			keys, err := c.deleteChunk(ctx, chunk)
			if err != nil {
				return err
			}
			deleted[i] = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []string
	for _, keys := range deleted {
		all = append(all, keys...)
	}
	return all, nil
}

// DeleteRecursive deletes every object under prefix. Full 1000-key
// batches are dispatched concurrently while the listing continues; the
// remainder goes last. Like Delete, a batch failure does not cancel the
// others and the first error wins.
func (c *Client) DeleteRecursive(ctx context.Context, prefix string) ([]string, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		ordered = make(map[int][]string)
		next    int
	)
	launch := func(batch []Object) {
		idx := next
		next++
		g.Go(func() error {
			keys, err := c.deleteChunk(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			ordered[idx] = keys
			mu.Unlock()
			return nil
		})
	}
	batch := make([]Object, 0, deleteChunkSize)
	for file, err := range c.List(ctx, prefix) {
		if err != nil {
			// Settle in-flight batches, then surface the listing error.
			_ = g.Wait()
			return nil, err
		}
		batch = append(batch, file)
		if len(batch) == deleteChunkSize {
			launch(batch)
			batch = make([]Object, 0, deleteChunkSize)
		}
	}
	if len(batch) > 0 {
		launch(batch)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []string
	for i := 0; i < next; i++ {
		all = append(all, ordered[i]...)
	}
	return all, nil
}

func (c *Client) deleteChunk(ctx context.Context, objects []Object) ([]string, error) {
	req := deleteRequest{XMLNS: deleteXMLNS, Objects: make([]deleteObject, 0, len(objects))}
	for _, obj := range objects {
		req.Objects = append(req.Objects, deleteObject{Key: obj.ObjectKey()})
	}
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, err
	}
	body = append([]byte(xml.Header), body...)
	resp, err := c.aws.Post(ctx, "/", url.Values{"delete": {"1"}}, body, "text/xml")
	if err != nil {
		return nil, fmt.Errorf("delete chunk: %w", err)
	}
	var result deleteResult
	if err := xml.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("delete chunk: decode result: %w", err)
	}
	keys := make([]string, 0, len(result.Deleted))
	for _, d := range result.Deleted {
		keys = append(keys, d.Key)
	}
	c.aws.LogTrace(ctx, "s3.delete.chunk", "requested", len(objects), "deleted", len(keys))
	return keys, nil
}
