// Package ses sends email through the SES SendRawEmail API and decodes
// delivery-event webhooks.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// SendEmail assembles the full MIME message locally: plain text, an
// optional HTML alternative, and attachments under a 10 MiB cumulative
// cap, then submits it base64-encoded in a single form post:
//
//	id, err := cli.SendEmail(ctx, ses.SendEmailParams{
//	    From:     ses.Recipient{Email: "noreply@example.com", FirstName: "Example"},
//	    Subject:  "Welcome",
//	    To:       []ses.Recipient{ses.To("new.user@example.com")},
//	    TextBody: "Hello!",
//	    HTMLBody: "<b>Hello!</b>",
//	})
//
// Delivery events posted back by an event destination are verified and
// decoded with BuildWebhookInfo, which wraps sns.VerifyWebhook and
// interprets the SES event JSON: event type, message id, tags, and
// whether the recipient should be unsubscribed (permanent bounces and
// complaints).
package ses
