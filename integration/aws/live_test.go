//go:build integration && aws

// Package awsintegration exercises the clients against live AWS
// resources. Opt in with -tags "integration aws" and point the
// PAWS_TEST_* variables at an account you control; objects and items
// the tests create are removed on the way out.
package awsintegration

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"pkt.systems/paws"
	"pkt.systems/paws/dynamo"
	"pkt.systems/paws/s3"
	"pkt.systems/paws/ses"
	"pkt.systems/paws/sqs"
	"pkt.systems/pslog"
)

func loadConfig(tb testing.TB) paws.Config {
	tb.Helper()
	cfg := paws.Config{
		AccessKey: os.Getenv("PAWS_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("PAWS_TEST_SECRET_KEY"),
		Region:    os.Getenv("PAWS_TEST_REGION"),
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Region == "" {
		tb.Fatalf("PAWS_TEST_ACCESS_KEY, PAWS_TEST_SECRET_KEY, and PAWS_TEST_REGION must be set for live tests")
	}
	return cfg
}

func testLogger(tb testing.TB) pslog.Logger {
	tb.Helper()
	return pslog.LoggerFromEnv(context.Background(), pslog.WithEnvPrefix("PAWS_TEST_LOG_"), pslog.WithEnvOptions(pslog.Options{
		Mode:     pslog.ModeConsole,
		MinLevel: pslog.WarnLevel,
	}))
}

func TestS3RoundTrip(t *testing.T) {
	bucket := os.Getenv("PAWS_TEST_BUCKET")
	if bucket == "" {
		t.Fatalf("PAWS_TEST_BUCKET must name a writable bucket")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cli, err := s3.New(nil, s3.Config{Config: loadConfig(t), Bucket: bucket}, paws.WithLogger(testLogger(t)))
	if err != nil {
		t.Fatalf("s3.New: %v", err)
	}

	key := "paws-live/" + paws.GenerateCorrelationID() + ".txt"
	content := []byte("live round trip " + time.Now().UTC().Format(time.RFC3339))
	if err := cli.Upload(ctx, key, content, "text/plain"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer func() {
		if _, err := cli.Delete(ctx, s3.Key(key)); err != nil {
			t.Errorf("cleanup delete: %v", err)
		}
	}()

	var found bool
	for obj, err := range cli.List(ctx, "paws-live/") {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if obj.Key == key {
			found = true
		}
	}
	if !found {
		t.Fatalf("uploaded key %q missing from listing", key)
	}

	got, err := cli.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("download = %q, want %q", got, content)
	}

	link, err := cli.SignedDownloadURL(key, time.Minute, "")
	if err != nil {
		t.Fatalf("sign download url: %v", err)
	}
	resp, err := http.Get(link)
	if err != nil {
		t.Fatalf("fetch signed url: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read signed url body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signed url status = %d, body %s", resp.StatusCode, body)
	}
	if !bytes.Equal(body, content) {
		t.Fatalf("signed url body = %q, want %q", body, content)
	}
}

func TestSQSPollHeartbeat(t *testing.T) {
	queue := os.Getenv("PAWS_TEST_QUEUE")
	if queue == "" {
		t.Fatalf("PAWS_TEST_QUEUE must name a readable queue")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cli, err := sqs.New(nil, sqs.Config{Config: loadConfig(t), Queue: queue}, sqs.WithLogger(testLogger(t)))
	if err != nil {
		t.Fatalf("sqs.New: %v", err)
	}
	for batch, err := range cli.Poll(ctx, sqs.PollConfig{Wait: 2 * time.Second}) {
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		t.Logf("received %d messages", len(batch))
		break
	}
}

func TestDynamoItemRoundTrip(t *testing.T) {
	table := os.Getenv("PAWS_TEST_DYNAMO_TABLE")
	if table == "" {
		t.Skip("PAWS_TEST_DYNAMO_TABLE not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cli, err := dynamo.New(nil, loadConfig(t), paws.WithLogger(testLogger(t)))
	if err != nil {
		t.Fatalf("dynamo.New: %v", err)
	}
	id := "paws-live-" + paws.GenerateCorrelationID()
	key := dynamo.Item{"id": map[string]any{"S": id}}
	if _, err := cli.PutItem(ctx, table, dynamo.Item{
		"id":   map[string]any{"S": id},
		"note": map[string]any{"S": "live round trip"},
	}); err != nil {
		t.Fatalf("put item: %v", err)
	}
	defer func() {
		if _, err := cli.DeleteItem(ctx, table, key); err != nil {
			t.Errorf("cleanup delete: %v", err)
		}
	}()

	out, err := cli.GetItem(ctx, table, key)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	item, ok := out["Item"].(map[string]any)
	if !ok {
		t.Fatalf("response = %v, want Item", out)
	}
	note, _ := item["note"].(map[string]any)
	if note["S"] != "live round trip" {
		t.Fatalf("item = %v", item)
	}
}

func TestSESSend(t *testing.T) {
	from := os.Getenv("PAWS_TEST_SES_FROM")
	to := os.Getenv("PAWS_TEST_SES_TO")
	if from == "" || to == "" {
		t.Skip("PAWS_TEST_SES_FROM and PAWS_TEST_SES_TO not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cli, err := ses.New(nil, loadConfig(t), paws.WithLogger(testLogger(t)))
	if err != nil {
		t.Fatalf("ses.New: %v", err)
	}
	id, err := cli.SendEmail(ctx, ses.SendEmailParams{
		From:     ses.To(from),
		To:       []ses.Recipient{ses.To(to)},
		Subject:  "paws live test",
		TextBody: "sent by the live integration suite",
	})
	if err != nil {
		t.Fatalf("send email: %v", err)
	}
	if id == "" {
		t.Fatal("empty message id")
	}
	t.Logf("message id %s", id)
}
