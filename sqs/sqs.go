package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkt.systems/paws"
	"pkt.systems/paws/awsv4"
	"pkt.systems/paws/internal/clock"
	"pkt.systems/paws/internal/version"
	"pkt.systems/pslog"
)

// MaxVisibilityTimeout is the service's visibility ceiling, 12 hours.
// ChangeVisibility rejects timeouts at or above it.
const MaxVisibilityTimeout = 12 * time.Hour

// Config configures the queue client.
type Config struct {
	paws.Config
	// Queue is the queue name, resolved to its URL on first use, or a
	// full queue URL when it starts with "http".
	Queue string
}

// Validate normalizes the config and rejects a missing queue.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	c.Queue = strings.TrimSpace(c.Queue)
	if c.Queue == "" {
		return fmt.Errorf("config: queue is required")
	}
	return nil
}

// Client consumes one queue. Queue URLs carry their own host, decided by
// the remote, so requests are signed in flight by a paws.SigningTransport
// rather than against a fixed endpoint. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	serviceURL string
	logger     pslog.Base
	clk        clock.Clock

	// mu guards lazy queue-name resolution.
	mu       sync.Mutex
	queue    string
	queueURL string
}

// Option customises client construction.
type Option func(*Client)

// WithLogger supplies a logger for queue diagnostics. Passing nil falls
// back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) {
		if logger == nil {
			c.logger = pslog.NoopLogger()
			return
		}
		c.logger = logger
	}
}

// WithClock overrides the signing time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// New builds a queue client. A nil httpClient falls back to
// paws.DefaultHTTPClient(); either way the exchanges run through a
// signing transport layered on the client's own.
func New(httpClient *http.Client, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("paws: %w", err)
	}
	signer, err := awsv4.New(cfg.Credentials(), cfg.Region, "sqs")
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "" {
		host = paws.DefaultHost("sqs", cfg.Region)
	}
	c := &Client{
		serviceURL: cfg.Scheme + "://" + host,
		logger:     pslog.NoopLogger(),
		clk:        clock.Real{},
		queue:      cfg.Queue,
	}
	if strings.HasPrefix(cfg.Queue, "http") {
		c.queueURL = cfg.Queue
	}
	for _, opt := range opts {
		opt(c)
	}
	if httpClient == nil {
		httpClient = paws.DefaultHTTPClient()
	}
	c.httpClient = &http.Client{
		Transport: &paws.SigningTransport{Base: httpClient.Transport, Signer: signer, Now: c.clk.Now},
	}
	c.logger.Info("sqs.client.init", "queue", cfg.Queue, "resolved", c.queueURL != "")
	return c, nil
}

// Message is one received queue message. The receipt handle is the
// ticket for deleting it or extending its invisibility; the message
// becomes eligible for redelivery once the visibility window lapses.
type Message struct {
	MessageID     string            `json:"MessageId"`
	ReceiptHandle string            `json:"ReceiptHandle"`
	MD5OfBody     string            `json:"MD5OfBody"`
	Body          string            `json:"Body"`
	Attributes    map[string]string `json:"Attributes"`
}

// PollConfig tunes Poll. The zero value long-polls for 10 seconds and
// fetches at most one message per request.
type PollConfig struct {
	// Wait is the long-poll hold per request, 10s when zero. Sent to the
	// remote in whole seconds; must be positive.
	Wait time.Duration
	// MaxMessages caps the batch size per request, default 1, at most 10.
	MaxMessages int
}

func (pc *PollConfig) normalize() error {
	if pc.Wait == 0 {
		pc.Wait = 10 * time.Second
	}
	if pc.Wait < time.Second {
		return &paws.ValidationError{Op: "sqs.poll", Reason: fmt.Sprintf("wait must be at least 1s, got %s", pc.Wait)}
	}
	if pc.MaxMessages == 0 {
		pc.MaxMessages = 1
	}
	if pc.MaxMessages < 1 || pc.MaxMessages > 10 {
		return &paws.ValidationError{Op: "sqs.poll", Reason: fmt.Sprintf("max messages must be within [1, 10], got %d", pc.MaxMessages)}
	}
	return nil
}

// Poll returns an unbounded sequence of message batches. Each iteration
// issues one ReceiveMessage long poll and yields whatever it returned,
// empty batches included, so consumers observe every poll heartbeat.
// Iteration ends when the consumer breaks, ctx is cancelled, or a poll
// fails; failures are yielded with a nil batch.
func (c *Client) Poll(ctx context.Context, cfg PollConfig) iter.Seq2[[]Message, error] {
	return func(yield func([]Message, error) bool) {
		if err := cfg.normalize(); err != nil {
			yield(nil, err)
			return
		}
		queueURL, err := c.queueEndpoint(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		query := url.Values{
			"Action":              {"ReceiveMessage"},
			"MaxNumberOfMessages": {strconv.Itoa(cfg.MaxMessages)},
			"WaitTimeSeconds":     {strconv.FormatInt(int64(cfg.Wait/time.Second), 10)},
		}
		for {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			batch, err := c.receive(ctx, queueURL, query, cfg.Wait)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func (c *Client) receive(ctx context.Context, queueURL string, query url.Values, wait time.Duration) ([]Message, error) {
	// 1.5x the long-poll hold keeps the HTTP deadline clear of the
	// server-side wait.
	ctx, cancel := context.WithTimeout(ctx, wait*3/2)
	defer cancel()
	body, err := c.do(ctx, http.MethodGet, queueURL, query)
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	var result struct {
		ReceiveMessageResponse struct {
			ReceiveMessageResult struct {
				Messages []Message `json:"messages"`
			} `json:"ReceiveMessageResult"`
		} `json:"ReceiveMessageResponse"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &paws.ProtocolError{Op: "sqs.receive_message", Reason: "response is not valid JSON"}
	}
	batch := result.ReceiveMessageResponse.ReceiveMessageResult.Messages
	c.logger.Trace("sqs.receive", paws.AppendCID(ctx, "count", len(batch))...)
	return batch, nil
}

// ChangeVisibility moves a received message's invisibility window. The
// service caps the timeout below 12 hours; out-of-range values fail
// before any request is made.
func (c *Client) ChangeVisibility(ctx context.Context, msg Message, timeout time.Duration) error {
	if timeout < 0 || timeout >= MaxVisibilityTimeout {
		return &paws.ValidationError{
			Op:     "sqs.change_visibility",
			Reason: fmt.Sprintf("visibility timeout must be within [0s, %s), got %s", MaxVisibilityTimeout, timeout),
		}
	}
	queueURL, err := c.queueEndpoint(ctx)
	if err != nil {
		return err
	}
	query := url.Values{
		"Action":            {"ChangeMessageVisibility"},
		"VisibilityTimeout": {strconv.FormatInt(int64(timeout/time.Second), 10)},
		"ReceiptHandle":     {msg.ReceiptHandle},
	}
	if _, err := c.do(ctx, http.MethodPost, queueURL, query); err != nil {
		return fmt.Errorf("change visibility: %w", err)
	}
	c.logger.Trace("sqs.visibility", paws.AppendCID(ctx, "message_id", msg.MessageID, "timeout", timeout)...)
	return nil
}

// DeleteMessage consumes a received message by its receipt handle.
func (c *Client) DeleteMessage(ctx context.Context, msg Message) error {
	queueURL, err := c.queueEndpoint(ctx)
	if err != nil {
		return err
	}
	query := url.Values{
		"Action":        {"DeleteMessage"},
		"ReceiptHandle": {msg.ReceiptHandle},
	}
	if _, err := c.do(ctx, http.MethodPost, queueURL, query); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	c.logger.Trace("sqs.delete", paws.AppendCID(ctx, "message_id", msg.MessageID)...)
	return nil
}

// queueEndpoint returns the queue URL, resolving the configured name
// through GetQueueUrl on first use. The lock spans the lookup so
// concurrent first uses make a single request.
func (c *Client) queueEndpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queueURL != "" {
		return c.queueURL, nil
	}
	query := url.Values{
		"Action":    {"GetQueueUrl"},
		"QueueName": {c.queue},
	}
	body, err := c.do(ctx, http.MethodGet, c.serviceURL, query)
	if err != nil {
		return "", fmt.Errorf("resolve queue %s: %w", c.queue, err)
	}
	var result struct {
		GetQueueUrlResponse struct {
			GetQueueUrlResult struct {
				QueueURL string `json:"QueueUrl"`
			} `json:"GetQueueUrlResult"`
		} `json:"GetQueueUrlResponse"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &paws.ProtocolError{Op: "sqs.get_queue_url", Reason: "response is not valid JSON"}
	}
	queueURL := result.GetQueueUrlResponse.GetQueueUrlResult.QueueURL
	if queueURL == "" {
		return "", &paws.ProtocolError{Op: "sqs.get_queue_url", Reason: "response contains no queue url"}
	}
	c.queueURL = queueURL
	c.logger.Debug("sqs.queue.resolved", paws.AppendCID(ctx, "queue", c.queue, "url", queueURL)...)
	return queueURL, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values) ([]byte, error) {
	target := rawURL
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &paws.RequestError{Method: method, URL: target, Status: resp.StatusCode, Header: resp.Header, Body: body}
	}
	return body, nil
}
