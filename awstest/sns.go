package awstest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"maps"
	"math/big"
	"strings"
	"testing"
	"time"
)

// EnvelopeSigner issues signed notification envelopes together with the
// certificate that verifies them, so webhook verification can be tested
// end to end against a local fake.
type EnvelopeSigner struct {
	key *rsa.PrivateKey
	// CertPEM is the PEM-encoded self-signed certificate matching the
	// signing key. Serve it at the path the envelopes' SigningCertURL
	// points to.
	CertPEM []byte
}

// NewEnvelopeSigner generates a signing key and its certificate.
func NewEnvelopeSigner(t testing.TB) *EnvelopeSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("awstest: generate signing key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sns.us-east-1.amazonaws.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("awstest: create certificate: %v", err)
	}
	return &EnvelopeSigner{
		key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// Sign computes the base64 envelope signature over the canonical field
// order for the envelope's Type.
func (s *EnvelopeSigner) Sign(t testing.TB, envelope map[string]any) string {
	t.Helper()
	keys := []string{"Message", "MessageId", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"}
	if envelope["Type"] == "Notification" {
		keys = []string{"Message", "MessageId", "Subject", "Timestamp", "TopicArn", "Type"}
	}
	var b strings.Builder
	for _, key := range keys {
		value, ok := envelope[key].(string)
		if !ok || value == "" {
			continue
		}
		b.WriteString(key)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	digest := sha1.Sum([]byte(b.String()))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		t.Fatalf("awstest: sign envelope: %v", err)
	}
	return base64.StdEncoding.EncodeToString(signature)
}

// Envelope signs the fields and marshals the complete envelope body.
// The input map is not modified.
func (s *EnvelopeSigner) Envelope(t testing.TB, fields map[string]any) []byte {
	t.Helper()
	signed := maps.Clone(fields)
	signed["Signature"] = s.Sign(t, fields)
	body, err := json.Marshal(signed)
	if err != nil {
		t.Fatalf("awstest: marshal envelope: %v", err)
	}
	return body
}
