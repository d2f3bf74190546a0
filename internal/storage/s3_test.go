package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func testClient() *s3.Client {
	return s3.New(s3.Options{
		Region:       "eu-central-1",
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
		BaseEndpoint: aws.String("http://minio:9000"),
		UsePathStyle: true,
	})
}

func TestExportKey(t *testing.T) {
	key, err := ExportKey("u1")
	if err != nil {
		t.Fatalf("ExportKey() error = %v", err)
	}
	if !strings.HasPrefix(key, "exports/u1/") || !strings.HasSuffix(key, ".zip") {
		t.Fatalf("ExportKey() = %q", key)
	}
	other, _ := ExportKey("u1")
	if other == key {
		t.Fatalf("ExportKey() returned the same key twice")
	}
}

func TestDownloadLinkPublicEndpoint(t *testing.T) {
	s := NewExportStore(testClient(), "papertrail", "https://files.example.com/storage/")

	link, err := s.DownloadLink(context.Background(), "exports/u1/abc.zip")
	if err != nil {
		t.Fatalf("DownloadLink() error = %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if u.Host != "files.example.com" {
		t.Fatalf("host = %q, want files.example.com", u.Host)
	}
	if u.Path != "/storage/papertrail/exports/u1/abc.zip" {
		t.Fatalf("path = %q", u.Path)
	}
	if u.Query().Get("X-Amz-Signature") == "" {
		t.Fatalf("link is not presigned: %s", link)
	}
}

func TestDownloadLinkInternalEndpoint(t *testing.T) {
	s := NewExportStore(testClient(), "papertrail", "")

	link, err := s.DownloadLink(context.Background(), "exports/u1/abc.zip")
	if err != nil {
		t.Fatalf("DownloadLink() error = %v", err)
	}
	if !strings.HasPrefix(link, "http://minio:9000/papertrail/exports/u1/abc.zip?") {
		t.Fatalf("DownloadLink() = %q", link)
	}
}

func TestDownloadLinkInvalidEndpoint(t *testing.T) {
	s := NewExportStore(testClient(), "papertrail", "not a url")
	if _, err := s.DownloadLink(context.Background(), "k"); err == nil {
		t.Fatalf("expected error for invalid public endpoint")
	}
}

func TestNewExportStoreFromEnvDisabled(t *testing.T) {
	t.Setenv("AWS_BUCKET", "")
	s, err := NewExportStoreFromEnv(context.Background())
	if err != nil || s != nil {
		t.Fatalf("NewExportStoreFromEnv() = %v, %v; want nil, nil", s, err)
	}
}
