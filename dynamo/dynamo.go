package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"pkt.systems/paws"
)

// The key-value API is one POST endpoint; operations are selected by
// target header.
const (
	targetPrefix    = "DynamoDB_20120810."
	wireContentType = "application/x-amz-json-1.0"
)

// Config is the key-value client configuration. The shared settings are
// all the service needs; the default endpoint is
// dynamodb.<region>.amazonaws.com.
type Config = paws.Config

// Client talks to the DynamoDB API. Items and keys pass through in the
// wire's attribute-value form; the client shapes requests and pagination
// but does not model the attribute type system.
type Client struct {
	aws *paws.Client
}

// New builds a key-value client. A nil httpClient falls back to
// paws.DefaultHTTPClient().
func New(httpClient *http.Client, cfg Config, opts ...paws.Option) (*Client, error) {
	aws, err := paws.NewClient(httpClient, cfg, "dynamodb", opts...)
	if err != nil {
		return nil, err
	}
	return &Client{aws: aws}, nil
}

// Endpoint returns the endpoint the client targets.
func (c *Client) Endpoint() string { return c.aws.Endpoint() }

// Item is an attribute-value map exactly as the wire carries it:
//
//	dynamo.Item{"id": map[string]any{"S": "user-1"}}
type Item map[string]any

// PutItem writes an item. The returned map is the decoded response
// body; it carries Attributes when the request asked for return values.
func (c *Client) PutItem(ctx context.Context, table string, item Item) (map[string]any, error) {
	return c.call(ctx, "PutItem", "dynamo.put_item", map[string]any{
		"TableName": table,
		"Item":      item,
	})
}

// GetItem reads an item by its full primary key. The decoded response
// carries the attribute map under "Item"; a missing item decodes to a
// response without that key.
func (c *Client) GetItem(ctx context.Context, table string, key Item) (map[string]any, error) {
	return c.call(ctx, "GetItem", "dynamo.get_item", map[string]any{
		"TableName": table,
		"Key":       key,
	})
}

// DeleteItem removes an item by its full primary key.
func (c *Client) DeleteItem(ctx context.Context, table string, key Item) (map[string]any, error) {
	return c.call(ctx, "DeleteItem", "dynamo.delete_item", map[string]any{
		"TableName": table,
		"Key":       key,
	})
}

// QueryParams describes a key-condition query.
type QueryParams struct {
	Table string
	// KeyCondition is the KeyConditionExpression, e.g. "id = :id".
	KeyCondition string
	// Values binds the expression placeholders, attribute-value form.
	Values Item
	// Extra merges additional top-level request members such as
	// IndexName, Limit, or ScanIndexForward.
	Extra map[string]any
}

// Query runs a paginated key-condition query and yields matching items
// one at a time, following LastEvaluatedKey until the result set is
// exhausted. Iteration ends when the consumer breaks or a page fails;
// failures are yielded with a nil item.
func (c *Client) Query(ctx context.Context, p QueryParams) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		var startKey any
		for {
			payload := map[string]any{
				"TableName":                 p.Table,
				"KeyConditionExpression":    p.KeyCondition,
				"ExpressionAttributeValues": p.Values,
			}
			for name, value := range p.Extra {
				payload[name] = value
			}
			if startKey != nil {
				payload["ExclusiveStartKey"] = startKey
			}
			page, err := c.call(ctx, "Query", "dynamo.query", payload)
			if err != nil {
				yield(nil, err)
				return
			}
			items, _ := page["Items"].([]any)
			for _, raw := range items {
				attrs, ok := raw.(map[string]any)
				if !ok {
					yield(nil, &paws.ProtocolError{Op: "dynamo.query", Reason: "item is not an object"})
					return
				}
				if !yield(Item(attrs), nil) {
					return
				}
			}
			startKey = page["LastEvaluatedKey"]
			if startKey == nil {
				return
			}
		}
	}
}

func (c *Client) call(ctx context.Context, action, op string, payload map[string]any) (map[string]any, error) {
	table, _ := payload["TableName"].(string)
	if strings.TrimSpace(table) == "" {
		return nil, &paws.ValidationError{Op: op, Reason: "table name is required"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dynamo: marshal %s request: %w", action, err)
	}
	resp, err := c.aws.Do(ctx, paws.Request{
		Method:      http.MethodPost,
		Path:        "/",
		Body:        body,
		ContentType: wireContentType,
		Header:      http.Header{"X-Amz-Target": {targetPrefix + action}},
	})
	if err != nil {
		return nil, err
	}
	decoded := map[string]any{}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &decoded); err != nil {
			return nil, &paws.ProtocolError{Op: op, Reason: "response is not valid JSON"}
		}
	}
	c.aws.LogDebug(ctx, op, "table", table)
	return decoded, nil
}
