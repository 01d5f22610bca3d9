package sync

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Destination_Write(t *testing.T) {
	fake := &fakePutter{}
	dest := &S3Destination{client: fake, bucket: "backups", key: "gatepass/{date}/register.jsonl"}

	snap := snapshot("{\"type\":\"header\"}\n", 4)
	snap.Events = 9
	if err := dest.Write(context.Background(), snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := *fake.in.Key; got != "gatepass/2026-03-02/register.jsonl" {
		t.Errorf("key = %q", got)
	}
	if *fake.in.Bucket != "backups" || *fake.in.ContentType != "application/x-ndjson" {
		t.Errorf("bucket = %q, content type = %q", *fake.in.Bucket, *fake.in.ContentType)
	}
	if fake.body != string(snap.Data) {
		t.Errorf("body = %q", fake.body)
	}
	if fake.in.Metadata["entry-count"] != "4" || fake.in.Metadata["event-count"] != "9" {
		t.Errorf("metadata = %v", fake.in.Metadata)
	}
}

func TestS3Destination_FixedKey(t *testing.T) {
	dest := &S3Destination{bucket: "b", key: "gatepass/register.jsonl"}
	if got := dest.ObjectKey(snapshot("", 0)); got != "gatepass/register.jsonl" {
		t.Errorf("key = %q", got)
	}
	if dest.Name() != "s3://b/gatepass/register.jsonl" {
		t.Errorf("name = %q", dest.Name())
	}
}

func TestS3Destination_WriteError(t *testing.T) {
	fake := &fakePutter{err: errors.New("AccessDenied")}
	dest := &S3Destination{client: fake, bucket: "backups", key: "register.jsonl"}

	err := dest.Write(context.Background(), snapshot("{}\n", 0))
	if err == nil || !strings.Contains(err.Error(), "s3://backups/register.jsonl") {
		t.Fatalf("got %v, want error naming the object", err)
	}
}
