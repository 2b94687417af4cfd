// Package paws is a lean client library for AWS HTTP APIs: Signature
// Version 4 request signing, an authenticated HTTP client, and service
// clients for the object store (S3), transactional email (SES), queues
// (SQS), notification webhook verification (SNS), and key-value items
// (DynamoDB) layered on top.
// There is no generated SDK surface; every call is a plain HTTP exchange
// whose wire bytes are exactly the bytes that got signed.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// # Signing
//
// The awsv4 package implements the V4 algorithm as a pure function of
// request and instant. The root package wraps it in two delivery
// mechanisms: Client header-signs requests against a fixed service
// endpoint resolved from Config, and SigningTransport header-signs
// whatever URL a request carries, for services like SQS where the target
// host is only discovered at runtime.
//
// # Service clients
//
// Each service package embeds its own Config carrying the shared
// credential fields plus service specifics, and composes the root
// Client:
//
//	store, err := s3.New(nil, s3.Config{
//	    Config: paws.Config{AccessKey: key, SecretKey: secret, Region: "eu-west-1"},
//	    Bucket: "backups",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for file, err := range store.List(ctx, "2025/") {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(file.Key, file.Size)
//	}
//
// Passing nil for the HTTP client uses DefaultHTTPClient, an otelhttp
// instrumented transport with a deepened idle pool and no client-level
// timeout. Deadlines and cancellation travel on ctx.
//
// # Custom endpoints
//
// Config.Host points a client at MinIO, LocalStack, or a test server;
// it may carry a port and a path prefix ("localhost:9000/bucket").
// Config.Scheme downgrades to plain HTTP for local endpoints. Signing
// still happens against whatever host is configured, so S3-compatible
// stores that verify V4 signatures keep working.
//
// # Errors
//
// Precondition violations surface as *ValidationError before any I/O.
// Completed exchanges with an unexpected status surface as
// *RequestError carrying the drained body; RequestError.PrettyBody
// re-indents XML error payloads for logs. Well-formed transports with
// malformed payloads (a truncated listing without a continuation token,
// a send receipt without a message id) surface as *ProtocolError.
//
// # Logging
//
// Construction accepts WithLogger(pslog.Base); the default is a no-op.
// Request-level events are emitted at trace with dotted names
// ("aws.request", "s3.delete.chunk") and pick up the correlation
// identifier installed by WithCorrelationID from ctx.
package paws
