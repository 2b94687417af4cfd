package ses

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"pkt.systems/paws"
)

// maxAttachmentTotal caps the cumulative attachment payload per message.
const maxAttachmentTotal = 10 * 1024 * 1024

const crlf = "\r\n"

// Attachment is one file attached to an outgoing message. Content is
// used when set; otherwise the file at Path is read at send time.
type Attachment struct {
	// Content is the attachment payload.
	Content []byte
	// Path names a file to read when Content is nil.
	Path string
	// Name is the reported filename; defaults to the base of Path, then
	// to "attachment".
	Name string
	// ContentType labels the part, guessed from the filename's extension
	// when empty.
	ContentType string
	// ContentID, when set, marks the part inline so HTML bodies can
	// reference it through cid: URLs.
	ContentID string
}

func (a Attachment) resolve() (data []byte, filename, contentType string, err error) {
	filename = a.Name
	if filename == "" && a.Path != "" {
		filename = filepath.Base(a.Path)
	}
	if filename == "" {
		filename = "attachment"
	}
	data = a.Content
	if data == nil && a.Path != "" {
		data, err = os.ReadFile(a.Path)
		if err != nil {
			return nil, "", "", fmt.Errorf("ses: read attachment: %w", err)
		}
	}
	contentType = a.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	return data, filename, contentType, nil
}

// buildMessage renders the RFC 5322 message submitted to SendRawEmail.
// A bare text body stays a single part; an HTML body turns it into
// multipart/alternative; attachments wrap the whole thing in
// multipart/mixed.
func buildMessage(p SendEmailParams) ([]byte, error) {
	var buf bytes.Buffer
	head := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString(crlf)
	}
	head("MIME-Version", "1.0")
	head("Subject", mime.QEncoding.Encode("utf-8", p.Subject))
	head("From", p.From.Display())
	if len(p.To) > 0 {
		head("To", displayList(p.To))
	}
	if len(p.Cc) > 0 {
		head("Cc", displayList(p.Cc))
	}
	if len(p.Bcc) > 0 {
		head("Bcc", displayList(p.Bcc))
	}
	if p.UnsubscribeLink != "" {
		head("List-Unsubscribe", "<"+p.UnsubscribeLink+">")
	}
	if p.ConfigurationSet != "" {
		head("X-SES-CONFIGURATION-SET", p.ConfigurationSet)
	}
	if len(p.MessageTags) > 0 {
		head("X-SES-MESSAGE-TAGS", formatTags(p.MessageTags))
	}
	for _, name := range slices.Sorted(maps.Keys(p.Headers)) {
		head(name, p.Headers[name])
	}

	switch {
	case len(p.Attachments) == 0 && p.HTMLBody == "":
		head("Content-Type", "text/plain; charset=utf-8")
		head("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString(crlf)
		if err := writeQuoted(&buf, p.TextBody); err != nil {
			return nil, err
		}
	case len(p.Attachments) == 0:
		mw := multipart.NewWriter(&buf)
		head("Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
		buf.WriteString(crlf)
		if err := writeTextPart(mw, "text/plain", p.TextBody); err != nil {
			return nil, err
		}
		if err := writeTextPart(mw, "text/html", p.HTMLBody); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	default:
		mw := multipart.NewWriter(&buf)
		head("Content-Type", `multipart/mixed; boundary="`+mw.Boundary()+`"`)
		buf.WriteString(crlf)
		if p.HTMLBody == "" {
			if err := writeTextPart(mw, "text/plain", p.TextBody); err != nil {
				return nil, err
			}
		} else if err := writeAlternative(mw, p.TextBody, p.HTMLBody); err != nil {
			return nil, err
		}
		var total uint64
		for _, a := range p.Attachments {
			data, filename, contentType, err := a.resolve()
			if err != nil {
				return nil, err
			}
			total += uint64(len(data))
			if total > maxAttachmentTotal {
				return nil, &paws.ValidationError{
					Op:     "ses.send_email",
					Reason: fmt.Sprintf("attachments exceed the %s limit (%d bytes so far)", humanize.IBytes(maxAttachmentTotal), total),
				}
			}
			if err := writeAttachment(mw, filename, contentType, a.ContentID, data); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func displayList(recipients []Recipient) string {
	displays := make([]string, len(recipients))
	for i, r := range recipients {
		displays[i] = r.Display()
	}
	return strings.Join(displays, ", ")
}

func formatTags(tags map[string]string) string {
	pairs := make([]string, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		pairs = append(pairs, k+"="+tags[k])
	}
	return strings.Join(pairs, ", ")
}

func writeQuoted(w io.Writer, body string) error {
	qw := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qw, body); err != nil {
		return err
	}
	return qw.Close()
}

func writeTextPart(mw *multipart.Writer, contentType, body string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType+"; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	return writeQuoted(pw, body)
}

// writeAlternative nests a multipart/alternative part carrying the text
// and HTML renditions. The inner boundary must be known before the part
// header is written, so the parts render into a scratch buffer first.
func writeAlternative(mw *multipart.Writer, textBody, htmlBody string) error {
	var body bytes.Buffer
	alt := multipart.NewWriter(&body)
	if err := writeTextPart(alt, "text/plain", textBody); err != nil {
		return err
	}
	if err := writeTextPart(alt, "text/html", htmlBody); err != nil {
		return err
	}
	if err := alt.Close(); err != nil {
		return err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", `multipart/alternative; boundary="`+alt.Boundary()+`"`)
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = pw.Write(body.Bytes())
	return err
}

func writeAttachment(mw *multipart.Writer, filename, contentType, contentID string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	disposition := "attachment"
	if contentID != "" {
		h.Set("Content-ID", contentID)
		disposition = "inline"
	}
	h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": filename}))
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		line := enc
		if len(line) > 76 {
			line = line[:76]
		}
		if _, err := io.WriteString(pw, line+crlf); err != nil {
			return err
		}
		enc = enc[len(line):]
	}
	return nil
}
