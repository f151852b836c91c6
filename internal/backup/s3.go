// Package backup uploads storage archives to S3.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putter is the subset of *s3.Client used here.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores backup archives under bucket/prefix. It satisfies
// ticketstore.Uploader.
type S3Uploader struct {
	client putter
	bucket string
	prefix string
}

// NewS3Uploader wraps an existing S3 client.
func NewS3Uploader(client *s3.Client, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3UploaderFromEnv resolves credentials and region through the AWS
// default chain (env, shared config, instance role).
func NewS3UploaderFromEnv(ctx context.Context, bucket, prefix string) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket not configured")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3Uploader(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Key returns the object key used for a local file name.
func (u *S3Uploader) Key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload puts the file at localPath under name and returns its s3:// URI.
func (u *S3Uploader) Upload(ctx context.Context, name, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("reading backup size: %w", err)
	}

	key := u.Key(name)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zstd"),
	})
	if err != nil {
		return "", fmt.Errorf("putting s3 object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
