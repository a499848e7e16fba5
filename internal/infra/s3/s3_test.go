package s3

import (
	"context"
	"testing"
)

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestNewClientBuildsWithoutNetwork(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.EndpointURL().Host != "localhost:9000" {
		t.Fatalf("unexpected endpoint %s", client.EndpointURL().Host)
	}
}

func TestCheckBucketRejectsNilClient(t *testing.T) {
	if err := CheckBucket(context.Background(), nil, "b"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
