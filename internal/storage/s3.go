package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/papertrail-ai/papertrail/backend/internal/util"
)

const (
	exportPrefix  = "exports"
	linkExpiry    = 15 * time.Minute
	zipMimeType   = "application/zip"
	exportKeySize = 21
)

// ExportStore uploads clean-room archives and hands out presigned links.
type ExportStore struct {
	client         *s3.Client
	bucket         string
	publicEndpoint string
}

// NewExportStoreFromEnv builds an ExportStore from the AWS_* variables.
// It returns nil, nil when AWS_BUCKET is unset.
func NewExportStoreFromEnv(ctx context.Context) (*ExportStore, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	if bucket == "" {
		return nil, nil
	}

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnvString("AWS_REGION", "us-east-1")),
		config.WithBaseEndpoint(util.GetEnv("AWS_ENDPOINT")),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewExportStore(client, bucket, util.GetEnv("AWS_PUBLIC_ENDPOINT")), nil
}

func NewExportStore(client *s3.Client, bucket, publicEndpoint string) *ExportStore {
	return &ExportStore{client: client, bucket: bucket, publicEndpoint: publicEndpoint}
}

// ExportKey returns a fresh object key below exports/<owner>/.
func ExportKey(owner string) (string, error) {
	id, err := gonanoid.New(exportKeySize)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s.zip", exportPrefix, owner, id), nil
}

// PutExport uploads archive and returns its object key.
func (s *ExportStore) PutExport(ctx context.Context, owner string, archive []byte) (string, error) {
	key, err := ExportKey(owner)
	if err != nil {
		return "", fmt.Errorf("generate export key: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(archive),
		ContentType: aws.String(zipMimeType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}
	return key, nil
}

// DownloadLink presigns a GET for key against AWS_PUBLIC_ENDPOINT, or the
// client's own endpoint when no public endpoint is configured.
func (s *ExportStore) DownloadLink(ctx context.Context, key string) (string, error) {
	presignClient := s.client
	prefix := ""

	if s.publicEndpoint != "" {
		publicURL, err := url.Parse(s.publicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", s.publicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")
		base := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

		// the signature covers the Host header the client will send
		presignClient = s3.NewFromConfig(
			aws.Config{
				Region:      s.client.Options().Region,
				Credentials: s.client.Options().Credentials,
				HTTPClient:  s.client.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(base)
				o.UsePathStyle = true
			},
		)
	}

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix == "" {
		return out.URL, nil
	}
	signedURL, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signedURL.Path = prefix + signedURL.Path
	return signedURL.String(), nil
}
