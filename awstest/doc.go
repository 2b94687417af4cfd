// Package awstest provides canned responses and fixtures for testing
// code built on this module against local fake servers.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// The response builders return bodies in the exact shapes the live
// services produce, so handler fakes stay one-liners. EnvelopeSigner
// mints notification envelopes with working signatures, and Client
// wires an http.Client that delivers amazonaws.com requests to an
// httptest server.
package awstest
