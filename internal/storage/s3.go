package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Options configures an S3-compatible store.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Prefix       string
}

// S3 stores artifacts in a bucket.
type S3 struct {
	svc    s3iface.S3API
	bucket string
	prefix string
}

// NewS3 wraps an existing client.
func NewS3(svc s3iface.S3API, bucket, prefix string) (*S3, error) {
	if svc == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &S3{svc: svc, bucket: bucket, prefix: prefix}, nil
}

// NewS3FromConfig builds a client from the shared AWS configuration plus an
// optional custom endpoint for S3-compatible services.
func NewS3FromConfig(opts S3Options) (*S3, error) {
	awsCfg := aws.Config{Region: aws.String(opts.Region)}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
	}
	if opts.UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            awsCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3(s3.New(sess), opts.Bucket, opts.Prefix)
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, src, name string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	key := objectKey(s.prefix, name)
	if _, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(name)),
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Exists implements Store.
func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err == nil {
		return true, nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
		return false, nil
	}
	return false, err
}

func contentType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(lower, ".mmd"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
