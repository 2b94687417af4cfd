package paws

import (
	"fmt"
	"strings"

	"pkt.systems/paws/awsv4"
)

// Config carries the credentials and endpoint settings shared by every
// service client. Service packages embed it in their own configs.
type Config struct {
	// AccessKey is the access key identifier.
	AccessKey string
	// SecretKey is the secret signing key. Never logged, never serialized.
	SecretKey string
	// Region selects the signing region and the default endpoint hosts.
	Region string
	// Host overrides the service endpoint. Used verbatim when set; it may
	// carry a port and a path prefix ("localhost:9000/bucket") for
	// compatible third-party or test endpoints.
	Host string
	// Scheme is the endpoint scheme, https when empty. Set to "http" only
	// for local test endpoints.
	Scheme string
}

// Validate normalizes the config in place and rejects incomplete
// credentials. Region is always required; it scopes every signature even
// when a custom Host routes the traffic elsewhere.
func (c *Config) Validate() error {
	c.AccessKey = strings.TrimSpace(c.AccessKey)
	c.Region = strings.TrimSpace(c.Region)
	c.Host = strings.Trim(strings.TrimSpace(c.Host), "/")
	if c.AccessKey == "" {
		return fmt.Errorf("config: access key is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("config: secret key is required")
	}
	if c.Region == "" {
		return fmt.Errorf("config: region is required")
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	switch c.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("config: scheme must be %q or %q", "http", "https")
	}
	return nil
}

// Credentials returns the signing key pair.
func (c Config) Credentials() awsv4.Credentials {
	return awsv4.Credentials{AccessKeyID: c.AccessKey, SecretAccessKey: c.SecretKey}
}

// DefaultHost returns the regional endpoint host for a service. The email
// service uses the email.<region> convention; everything else follows
// <service>.<region>. Object-store hosts depend on the bucket and are
// resolved by the s3 package instead.
func DefaultHost(service, region string) string {
	if service == "ses" {
		return "email." + region + ".amazonaws.com"
	}
	return service + "." + region + ".amazonaws.com"
}
