// Package awsv4 implements AWS Signature Version 4 request signing: the
// canonical request, the string to sign, the HMAC-SHA256 key-derivation
// chain, header-based authentication, and presigned (query-authenticated)
// URLs.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// The remote verifier reconstructs the canonical request byte-for-byte
// from the wire request, so every encoding decision here is load-bearing:
// paths keep "/" but encode all other reserved characters, query
// parameters are sorted and percent-encoded with %20 for space, and
// header names are lowercased and sorted before hashing. EscapePath and
// CanonicalQuery expose those exact encodings so HTTP clients can send
// precisely what was signed.
//
//	signer, err := awsv4.New(awsv4.Credentials{
//	    AccessKeyID:     "AKIA...",
//	    SecretAccessKey: "...",
//	}, "us-east-1", "s3")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = signer.SignRequest(req, body, time.Now().UTC())
//
// Signing is deterministic: the same request and instant always produce
// the same signature, which the tests pin against the published reference
// vectors.
package awsv4
