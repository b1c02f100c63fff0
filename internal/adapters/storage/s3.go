// Package storage uploads finished recordings to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/config"
)

var ErrEmptyS3BucketName = errors.New("empty S3 bucket name")

// PutObjectAPI is the part of the S3 upload manager the uploader needs.
type PutObjectAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Uploader struct {
	bucket    string
	directory string
	service   PutObjectAPI
}

// NewS3Uploader loads AWS credentials from the default chain.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, ErrEmptyS3BucketName
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	service := s3.NewFromConfig(awsCfg)
	return NewS3UploaderWith(manager.NewUploader(service), cfg.S3Bucket, cfg.S3Directory), nil
}

func NewS3UploaderWith(api PutObjectAPI, bucket, directory string) *S3Uploader {
	return &S3Uploader{bucket: bucket, directory: directory, service: api}
}

// Key is the object key key will be stored under.
func (s *S3Uploader) Key(key string) string {
	if s.directory == "" {
		return key
	}
	return path.Join(s.directory, key)
}

func (s *S3Uploader) Upload(ctx context.Context, key string, body io.Reader) error {
	uploadKey := s.Key(key)
	out, err := s.service.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(uploadKey),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, uploadKey, err)
	}
	log.Debug().Str("module", "adapters.storage").Str("location", out.Location).Msg("uploaded")
	return nil
}
