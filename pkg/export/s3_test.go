package export

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	url string
	err error
}

func (f *fakePresigner) PresignGetObject(context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url}, nil
}

func TestS3StorePut(t *testing.T) {
	client := &fakeS3{}
	presign := &fakePresigner{url: "https://signed.example.com/archive"}
	store := NewS3Store(client, presign, "userdeck-exports", "gdpr/")

	url, err := store.Put(context.Background(), "exports/u1/a.json", "application/json", []byte("{}"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://signed.example.com/archive" {
		t.Errorf("url = %q", url)
	}
	if got := *client.input.Key; got != "gdpr/exports/u1/a.json" {
		t.Errorf("key = %q, want prefixed key", got)
	}
	if got := *client.input.Bucket; got != "userdeck-exports" {
		t.Errorf("bucket = %q", got)
	}
}

func TestS3StorePutWithoutPresigner(t *testing.T) {
	store := NewS3Store(&fakeS3{}, nil, "b", "")

	url, err := store.Put(context.Background(), "k", "application/json", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "" {
		t.Errorf("url = %q, want empty without a presigner", url)
	}
}

func TestS3StorePresignFailureLogged(t *testing.T) {
	var logs bytes.Buffer
	presign := &fakePresigner{err: errors.New("signer unavailable")}
	store := NewS3Store(&fakeS3{}, presign, "b", "gdpr/").
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	// The object is stored, so a failed presign must not fail the export.
	url, err := store.Put(context.Background(), "k", "application/json", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "" {
		t.Errorf("url = %q, want empty on presign failure", url)
	}

	out := logs.String()
	if !strings.Contains(out, "presign failed") || !strings.Contains(out, "gdpr/k") {
		t.Errorf("log output %q missing presign warning with key", out)
	}
}

func TestS3StoreUploadFailure(t *testing.T) {
	boom := errors.New("access denied")
	store := NewS3Store(&fakeS3{err: boom}, nil, "b", "")

	if _, err := store.Put(context.Background(), "k", "application/json", nil); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped upload error", err)
	}
}
