package awstest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// MessageID returns a fresh identifier in the style the services use.
func MessageID() string { return uuid.NewString() }

// SendRawEmailResponse renders the XML the email service returns for a
// successful send. An empty messageID gets a generated one.
func SendRawEmailResponse(messageID string) string {
	if messageID == "" {
		messageID = MessageID()
	}
	return fmt.Sprintf(`<SendRawEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendRawEmailResult>
    <MessageId>%s</MessageId>
  </SendRawEmailResult>
  <ResponseMetadata><RequestId>%s</RequestId></ResponseMetadata>
</SendRawEmailResponse>`, xmlEscape(messageID), uuid.NewString())
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// QueueMessage is one canned queue message for ReceiveMessageResponse.
// Zero-value identifier fields are generated; the body digest is always
// computed.
type QueueMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
}

// GetQueueUrlResponse renders the queue-resolution JSON.
func GetQueueUrlResponse(t testing.TB, queueURL string) string {
	t.Helper()
	return marshal(t, map[string]any{
		"GetQueueUrlResponse": map[string]any{
			"GetQueueUrlResult": map[string]any{
				"QueueUrl": queueURL,
			},
			"ResponseMetadata": map[string]any{"RequestId": uuid.NewString()},
		},
	})
}

// ReceiveMessageResponse renders the long-poll JSON carrying the given
// messages. Call it with none for an empty receive.
func ReceiveMessageResponse(t testing.TB, messages ...QueueMessage) string {
	t.Helper()
	rendered := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if m.MessageID == "" {
			m.MessageID = uuid.NewString()
		}
		if m.ReceiptHandle == "" {
			m.ReceiptHandle = "handle-" + uuid.NewString()
		}
		sum := md5.Sum([]byte(m.Body))
		entry := map[string]any{
			"MessageId":     m.MessageID,
			"ReceiptHandle": m.ReceiptHandle,
			"MD5OfBody":     hex.EncodeToString(sum[:]),
			"Body":          m.Body,
		}
		if len(m.Attributes) > 0 {
			entry["Attributes"] = m.Attributes
		}
		rendered = append(rendered, entry)
	}
	var messagesField any
	if len(rendered) > 0 {
		messagesField = rendered
	}
	return marshal(t, map[string]any{
		"ReceiveMessageResponse": map[string]any{
			"ReceiveMessageResult": map[string]any{
				"messages": messagesField,
			},
			"ResponseMetadata": map[string]any{"RequestId": uuid.NewString()},
		},
	})
}

func marshal(t testing.TB, v any) string {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("awstest: marshal response: %v", err)
	}
	return string(body)
}
