package publish

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store writes exported documents to an S3 bucket.
//
// Example:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := publish.NewS3Store(s3.NewFromConfig(cfg), "my-site", "")
//	exporter := publish.NewExporter(app.Engine(), store, nil)
//	exporter.Export(ctx)
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a store over an S3 client. Keys are written under
// the given prefix.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads one document.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}
