package paws

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RequestError reports a response whose status did not match the
// call-site expectation. It is never produced for transport failures,
// only for completed HTTP exchanges.
type RequestError struct {
	// Method and URL identify the request that failed.
	Method string
	URL    string
	// Status is the HTTP status code the remote returned.
	Status int
	// Header is the full response header set.
	Header http.Header
	// Body contains the raw response body bytes for diagnostics.
	Body []byte
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("paws: unexpected response from %s %q: %d", e.Method, e.URL, e.Status)
}

// PrettyBody renders the response body for diagnostics, re-indenting it
// when the response declared an XML content type.
func (e *RequestError) PrettyBody() string {
	ct := e.Header.Get("Content-Type")
	if strings.Contains(ct, "xml") {
		if pretty, ok := indentXML(e.Body); ok {
			return pretty
		}
	}
	return string(e.Body)
}

// ValidationError reports a caller-supplied argument that is out of
// contract. It is raised before any network I/O.
type ValidationError struct {
	// Op names the rejected operation.
	Op string
	// Reason describes the violated precondition.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("paws: %s: %s", e.Op, e.Reason)
}

// ProtocolError reports a successful-status response whose body did not
// match the remote contract, such as a truncated listing without a
// continuation token or a send response without a message id.
type ProtocolError struct {
	// Op names the operation whose response was malformed.
	Op string
	// Reason describes the contract violation.
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("paws: %s: %s", e.Op, e.Reason)
}

func indentXML(raw []byte) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var out bytes.Buffer
	enc := xml.NewEncoder(&out)
	enc.Indent("", "  ")
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", false
		}
	}
	if err := enc.Flush(); err != nil {
		return "", false
	}
	return out.String(), true
}
