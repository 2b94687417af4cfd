package ses

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"pkt.systems/paws"
)

// Config is the email client configuration. The shared settings are all
// the service needs; the default endpoint is email.<region>.amazonaws.com.
type Config = paws.Config

// Client sends email through the SES API.
type Client struct {
	aws *paws.Client
}

// New builds an email client. A nil httpClient falls back to
// paws.DefaultHTTPClient().
func New(httpClient *http.Client, cfg Config, opts ...paws.Option) (*Client, error) {
	aws, err := paws.NewClient(httpClient, cfg, "ses", opts...)
	if err != nil {
		return nil, err
	}
	return &Client{aws: aws}, nil
}

// Endpoint returns the endpoint the client targets.
func (c *Client) Endpoint() string { return c.aws.Endpoint() }

// Recipient is one email address with an optional display name.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
}

// Display renders the recipient for an address header: Name <addr> with
// the name quoted or Q-encoded as the header grammar requires, or the
// bare address when no name is set.
func (r Recipient) Display() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.Email
	}
	return (&mail.Address{Name: name, Address: r.Email}).String()
}

// To wraps a bare address in a Recipient.
func To(email string) Recipient { return Recipient{Email: email} }

// SendEmailParams describes one outgoing message.
type SendEmailParams struct {
	// From is the sender; its Email becomes the envelope source.
	From    Recipient
	Subject string
	// At least one of To, Cc, Bcc must be non-empty.
	To  []Recipient
	Cc  []Recipient
	Bcc []Recipient
	// TextBody is the plain-text body.
	TextBody string
	// HTMLBody, when set, rides along as an alternative to TextBody.
	HTMLBody string
	// Attachments are appended as parts of a mixed message. Their total
	// size may not exceed 10 MiB.
	Attachments []Attachment
	// UnsubscribeLink populates the List-Unsubscribe header.
	UnsubscribeLink string
	// ConfigurationSet selects a sending configuration set.
	ConfigurationSet string
	// MessageTags become the X-SES-MESSAGE-TAGS header, k=v pairs joined
	// with commas in key order.
	MessageTags map[string]string
	// Headers carries extra SMTP headers verbatim.
	Headers map[string]string
}

// SendEmail builds the MIME message and submits it through SendRawEmail,
// returning the message id the service assigned. Recipient and
// attachment-size violations fail before any request is made.
func (c *Client) SendEmail(ctx context.Context, p SendEmailParams) (string, error) {
	if len(p.To) == 0 && len(p.Cc) == 0 && len(p.Bcc) == 0 {
		return "", &paws.ValidationError{Op: "ses.send_email", Reason: "at least one of To, Cc, or Bcc is required"}
	}
	msg, err := buildMessage(p)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"Action":          {"SendRawEmail"},
		"Source":          {p.From.Email},
		"RawMessage.Data": {base64.StdEncoding.EncodeToString(msg)},
	}
	addMembers(form, "ToAddresses", p.To)
	addMembers(form, "CcAddresses", p.Cc)
	addMembers(form, "BccAddresses", p.Bcc)

	resp, err := c.aws.Post(ctx, "/", nil, []byte(form.Encode()), "")
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	var result struct {
		MessageID string `xml:"SendRawEmailResult>MessageId"`
	}
	if err := xml.Unmarshal(resp.Body, &result); err != nil || result.MessageID == "" {
		return "", &paws.ProtocolError{Op: "ses.send_email", Reason: "response contains no message id"}
	}
	c.aws.LogDebug(ctx, "ses.send", "message_id", result.MessageID, "subject", p.Subject, "size", len(msg))
	return result.MessageID, nil
}

// Destination members are indexed from 1.
func addMembers(form url.Values, field string, recipients []Recipient) {
	for i, r := range recipients {
		form.Set(fmt.Sprintf("Destination.%s.member.%d", field, i+1), r.Email)
	}
}
