package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the slice of the S3 client the store needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner generates time-limited download URLs. *s3.PresignClient
// satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores archives in an S3 bucket.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store := export.NewS3Store(client, s3.NewPresignClient(client), "userdeck-exports", "gdpr/")
type S3Store struct {
	client    S3API
	presign   Presigner
	bucket    string
	prefix    string
	urlExpiry time.Duration
	log       *slog.Logger
}

// NewS3Store creates an S3-backed archive store. presign may be nil, in
// which case Put returns no download URL.
func NewS3Store(client S3API, presign Presigner, bucket, prefix string) *S3Store {
	return &S3Store{
		client:    client,
		presign:   presign,
		bucket:    bucket,
		prefix:    prefix,
		urlExpiry: 24 * time.Hour,
		log:       slog.Default(),
	}
}

// WithURLExpiry sets how long presigned download URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// WithLogger sets the store's logger.
func (s *S3Store) WithLogger(log *slog.Logger) *S3Store {
	s.log = log
	return s
}

// Put uploads the archive body and returns a presigned download URL when a
// presigner is configured.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	fullKey := s.prefix + key
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"export-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	if s.presign == nil {
		return "", nil
	}
	result, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
		},
		s3.WithPresignExpires(s.urlExpiry),
	)
	if err != nil {
		// The object is stored; a missing download link is not fatal.
		s.log.Warn("presign failed for stored archive", "key", fullKey, "error", err)
		return "", nil
	}
	return result.URL, nil
}
