package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ArchiveConfig configures the S3-compatible raw-document archive
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Archive stores raw ingested documents in S3-compatible object storage
// so source material can be re-processed without refetching.
type Archive struct {
	s3Client *s3.S3
	bucket   string
	logger   *slog.Logger
}

// NewArchive creates the archive client. Returns nil when no bucket is
// configured; callers treat a nil archive as disabled.
func NewArchive(config ArchiveConfig, logger *slog.Logger) (*Archive, error) {
	if config.Bucket == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("archive session: %w", err)
	}

	return &Archive{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
		logger:   logger.With("component", "archive"),
	}, nil
}

// Store uploads a raw document under the given key
func (a *Archive) Store(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", key, err)
	}
	a.logger.Info("archived raw document", "key", key, "bytes", len(data))
	return nil
}

// Fetch retrieves an archived document
func (a *Archive) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := a.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("archive get %s: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("archive read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
