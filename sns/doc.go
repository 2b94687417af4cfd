// Package sns verifies webhook deliveries from the SNS notification
// service.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// VerifyWebhook authenticates an incoming request body end to end: the
// envelope is decoded and validated, the signing certificate is fetched
// from the service's own host and its RSA key checks the envelope
// signature. Subscription confirmations are confirmed in place and
// yield no payload:
//
//	payload, err := sns.VerifyWebhook(ctx, body, nil, logger)
//	if err != nil {
//	    var whErr *sns.WebhookError
//	    if errors.As(err, &whErr) {
//	        // reject the delivery, 4xx
//	    }
//	    return err
//	}
//	if payload == nil {
//	    return nil // confirmation handled
//	}
//
// The ses package builds on this to decode email delivery events.
package sns
