package ses

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pkt.systems/paws"
	"pkt.systems/paws/sns"
	"pkt.systems/pslog"
)

var knownEventTypes = map[string]bool{
	"send":      true,
	"delivery":  true,
	"open":      true,
	"click":     true,
	"bounce":    true,
	"complaint": true,
}

// WebhookInfo is one decoded delivery event from an SES event
// destination webhook.
type WebhookInfo struct {
	// MessageID identifies the original outgoing message.
	MessageID string
	// EventType is the lowercased event name: send, delivery, open,
	// click, bounce, or complaint. Unknown types pass through as-is.
	EventType string
	// Timestamp is the event instant; zero when the event carries none.
	Timestamp time.Time
	// Unsubscribe reports whether the recipient should stop receiving
	// mail: permanent bounces and complaints.
	Unsubscribe bool
	// Tags holds the message tags, first value per key.
	Tags map[string]string
	// Details is the event-specific object, keyed by EventType in the
	// event JSON.
	Details map[string]any
	// FullMessage is the complete decoded event.
	FullMessage map[string]any
}

// BuildWebhookInfo verifies a webhook delivery with sns.VerifyWebhook
// and decodes the enclosed event. Subscription confirmations are
// confirmed upstream and yield (nil, nil), as does an event whose
// message is not JSON, which the service sends legitimately when a
// configuration set is first attached. A nil logger discards
// diagnostics.
func BuildWebhookInfo(ctx context.Context, requestBody []byte, httpClient *http.Client, logger pslog.Base) (*WebhookInfo, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	payload, err := sns.VerifyWebhook(ctx, requestBody, httpClient, logger)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	var message map[string]any
	if err := json.Unmarshal([]byte(payload.Message), &message); err != nil {
		logger.Warn("ses.webhook.invalid_json", paws.AppendCID(ctx, "sns_message_id", payload.MessageID)...)
		return nil, nil
	}

	eventType := strings.ToLower(stringField(message, "eventType"))
	if !knownEventTypes[eventType] {
		logger.Warn("ses.webhook.unknown_event", paws.AppendCID(ctx, "event_type", eventType)...)
	}

	mailData := mapField(message, "mail")
	details := mapField(message, eventType)
	if details == nil {
		details = map[string]any{}
	}

	rawTimestamp := stringField(details, "timestamp")
	if rawTimestamp == "" {
		rawTimestamp = stringField(mailData, "timestamp")
	}
	var timestamp time.Time
	if rawTimestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, rawTimestamp); err == nil {
			timestamp = parsed
		}
	}

	var unsubscribe bool
	switch eventType {
	case "bounce":
		unsubscribe = stringField(details, "bounceType") == "Permanent"
	case "complaint":
		unsubscribe = true
	}

	tags := map[string]string{}
	for key, value := range mapField(mailData, "tags") {
		values, ok := value.([]any)
		if !ok || len(values) == 0 {
			continue
		}
		if s, ok := values[0].(string); ok {
			tags[key] = s
		}
	}

	info := &WebhookInfo{
		MessageID:   stringField(mailData, "messageId"),
		EventType:   eventType,
		Timestamp:   timestamp,
		Unsubscribe: unsubscribe,
		Tags:        tags,
		Details:     details,
		FullMessage: message,
	}
	logger.Debug("ses.webhook", paws.AppendCID(ctx, "event_type", info.EventType, "message_id", info.MessageID, "unsubscribe", info.Unsubscribe)...)
	return info, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}
