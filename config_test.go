package paws

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	cfg := Config{AccessKey: "  AKIDEXAMPLE  ", SecretKey: "secret", Region: " eu-west-2 ", Host: "/localhost:9000/bucket/"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.AccessKey != "AKIDEXAMPLE" {
		t.Fatalf("access key not trimmed: %q", cfg.AccessKey)
	}
	if cfg.Region != "eu-west-2" {
		t.Fatalf("region not trimmed: %q", cfg.Region)
	}
	if cfg.Host != "localhost:9000/bucket" {
		t.Fatalf("host not trimmed: %q", cfg.Host)
	}
	if cfg.Scheme != "https" {
		t.Fatalf("expected https default, got %q", cfg.Scheme)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing access key", Config{SecretKey: "s", Region: "r"}, "access key"},
		{"missing secret", Config{AccessKey: "k", Region: "r"}, "secret key"},
		{"missing region", Config{AccessKey: "k", SecretKey: "s"}, "region"},
		{"bad scheme", Config{AccessKey: "k", SecretKey: "s", Region: "r", Scheme: "ftp"}, "scheme"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefaultHost(t *testing.T) {
	t.Parallel()
	if got := DefaultHost("ses", "us-east-1"); got != "email.us-east-1.amazonaws.com" {
		t.Fatalf("ses host: %q", got)
	}
	if got := DefaultHost("sqs", "eu-west-1"); got != "sqs.eu-west-1.amazonaws.com" {
		t.Fatalf("sqs host: %q", got)
	}
	if got := DefaultHost("dynamodb", "ap-southeast-2"); got != "dynamodb.ap-southeast-2.amazonaws.com" {
		t.Fatalf("dynamodb host: %q", got)
	}
}

func TestConfigCredentials(t *testing.T) {
	t.Parallel()
	cfg := Config{AccessKey: "k", SecretKey: "s"}
	creds := cfg.Credentials()
	if creds.AccessKeyID != "k" || creds.SecretAccessKey != "s" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}
