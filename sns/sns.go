package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"pkt.systems/paws"
	"pkt.systems/pslog"
)

// Envelope types the notification service delivers.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Certificates must be served from the notification service itself.
var certHostPattern = regexp.MustCompile(`^sns\.[a-z0-9\-]+\.amazonaws\.com$`)

// WebhookError reports an envelope that failed verification: malformed
// JSON, missing or invalid fields, a certificate URL outside the issuing
// service, a failed certificate fetch, or a signature mismatch.
type WebhookError struct {
	// Message describes the failure.
	Message string
	// Details carries field-level problems for invalid payloads.
	Details any
	// Headers holds the upstream response headers when a resource fetch
	// came back with an unexpected status.
	Headers http.Header
}

func (e *WebhookError) Error() string { return e.Message }

// Payload is a verified notification envelope. Fields absent from the
// envelope are empty; RequestData holds the decoded envelope as
// received, including fields this type does not model.
type Payload struct {
	Type           string `json:"Type"`
	Message        string `json:"Message"`
	MessageID      string `json:"MessageId"`
	Subject        string `json:"Subject"`
	Timestamp      string `json:"Timestamp"`
	TopicArn       string `json:"TopicArn"`
	Token          string `json:"Token"`
	SubscribeURL   string `json:"SubscribeURL"`
	SigningCertURL string `json:"SigningCertURL"`
	// Signature is the base64 signature as delivered.
	Signature string `json:"Signature"`

	RequestData map[string]any `json:"-"`
}

func (p *Payload) problems() []string {
	var problems []string
	switch p.Type {
	case TypeNotification, TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
	default:
		problems = append(problems, fmt.Sprintf("Type: unknown type %q", p.Type))
	}
	if !validHTTPURL(p.SigningCertURL) {
		problems = append(problems, "SigningCertURL: not a valid HTTP URL")
	}
	if p.Signature == "" {
		problems = append(problems, "Signature: required")
	} else if _, err := base64.StdEncoding.DecodeString(p.Signature); err != nil {
		problems = append(problems, "Signature: invalid base64")
	}
	if p.SubscribeURL != "" && !validHTTPURL(p.SubscribeURL) {
		problems = append(problems, "SubscribeURL: not a valid HTTP URL")
	}
	if p.Type == TypeSubscriptionConfirmation && p.SubscribeURL == "" {
		problems = append(problems, "SubscribeURL: required to confirm a subscription")
	}
	return problems
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// VerifyWebhook authenticates a webhook delivery from the notification
// service: it decodes the envelope, checks the signing certificate URL
// against the service's host pattern, fetches the certificate, and
// verifies the envelope signature with the certificate's RSA key.
// Subscription confirmations are confirmed with a GET to their
// SubscribeURL and yield (nil, nil); every other verified envelope is
// returned. Any verification failure is a *WebhookError. A nil
// httpClient falls back to paws.DefaultHTTPClient(); a nil logger
// discards diagnostics.
func VerifyWebhook(ctx context.Context, requestBody []byte, httpClient *http.Client, logger pslog.Base) (*Payload, error) {
	if httpClient == nil {
		httpClient = paws.DefaultHTTPClient()
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	var envelope map[string]any
	if err := json.Unmarshal(requestBody, &envelope); err != nil {
		return nil, &WebhookError{Message: "invalid JSON"}
	}
	p := &Payload{}
	if err := json.Unmarshal(requestBody, p); err != nil {
		logger.Warn("sns.webhook.invalid_payload", paws.AppendCID(ctx, "error", err)...)
		return nil, &WebhookError{Message: "invalid payload", Details: err.Error()}
	}
	p.RequestData = envelope
	if problems := p.problems(); len(problems) > 0 {
		logger.Warn("sns.webhook.invalid_payload", paws.AppendCID(ctx, "problems", strings.Join(problems, "; "))...)
		return nil, &WebhookError{Message: "invalid payload", Details: problems}
	}

	if err := verifySignature(ctx, p, httpClient, logger); err != nil {
		return nil, err
	}

	if p.Type == TypeSubscriptionConfirmation {
		logger.Info("sns.webhook.confirm_subscription", paws.AppendCID(ctx, "topic", p.TopicArn)...)
		if _, err := fetchResource(ctx, httpClient, logger, p.SubscribeURL); err != nil {
			return nil, err
		}
		return nil, nil
	}
	logger.Debug("sns.webhook.verified", paws.AppendCID(ctx, "type", p.Type, "message_id", p.MessageID)...)
	return p, nil
}

func verifySignature(ctx context.Context, p *Payload, httpClient *http.Client, logger pslog.Base) error {
	certURL, err := url.Parse(p.SigningCertURL)
	if err != nil || !certHostPattern.MatchString(certURL.Hostname()) {
		return &WebhookError{Message: fmt.Sprintf("invalid SigningCertURL %q", p.SigningCertURL)}
	}

	certPEM, err := fetchResource(ctx, httpClient, logger, p.SigningCertURL)
	if err != nil {
		return err
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return &WebhookError{Message: "invalid signing certificate"}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return &WebhookError{Message: "invalid signing certificate"}
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return &WebhookError{Message: "signing certificate key is not RSA"}
	}

	// Validated before use in problems().
	signature, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return &WebhookError{Message: "invalid payload", Details: "Signature: invalid base64"}
	}
	digest := sha1.Sum(canonicalMessage(p))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], signature); err != nil {
		return &WebhookError{Message: "invalid signature"}
	}
	return nil
}

// canonicalMessage renders the signed portion of the envelope: a fixed,
// type-dependent key order, each present field contributing its name and
// value on separate lines. Values come from the raw envelope so the
// signature check does not depend on which fields Payload models.
func canonicalMessage(p *Payload) []byte {
	var keys []string
	if p.Type == TypeNotification {
		keys = []string{"Message", "MessageId", "Subject", "Timestamp", "TopicArn", "Type"}
	} else {
		keys = []string{"Message", "MessageId", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"}
	}
	var b strings.Builder
	for _, key := range keys {
		value, ok := p.RequestData[key].(string)
		if !ok || value == "" {
			continue
		}
		b.WriteString(key)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func fetchResource(ctx context.Context, httpClient *http.Client, logger pslog.Base, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sns: fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sns: fetch %q: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("sns.fetch.unexpected_status", paws.AppendCID(ctx, "url", rawURL, "status", resp.StatusCode)...)
		return nil, &WebhookError{
			Message: fmt.Sprintf("unexpected response from %q, %d", rawURL, resp.StatusCode),
			Headers: resp.Header,
		}
	}
	return body, nil
}
