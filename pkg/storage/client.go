package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client fetches images published in public S3 buckets (s3://bucket/key)
type S3Client struct {
	s3Client *s3.Client
}

// NewS3Client creates a new S3 client for anonymous access
func NewS3Client(ctx context.Context, region string) (*S3Client, error) {
	slog.Info("s3_client_init", "region", region)

	// Load AWS config with anonymous credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// ParseS3URL splits s3://bucket/key into its parts
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(err, "invalid S3 URL")
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3:// URL: %s", raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Fetch streams an object into w
func (c *S3Client) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return 0, err
	}
	if key == "" {
		return 0, fmt.Errorf("S3 URL has no object key: %s", rawURL)
	}

	slog.Info("s3_download_start", "bucket", bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return 0, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	size, err := io.Copy(w, result.Body)
	if err != nil {
		slog.Error("s3_download_failed", "s3_key", key, "error", err)
		return size, errors.Wrap(err, "failed to download object")
	}

	slog.Info("s3_download_complete", "s3_key", key, "size_mb", size/1024/1024)
	return size, nil
}

// List returns the s3:// URLs of all objects under a prefix URL
func (c *S3Client) List(ctx context.Context, prefixURL string) ([]string, error) {
	bucket, prefix, err := ParseS3URL(prefixURL)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_list_start", "bucket", bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	var urls []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			urls = append(urls, "s3://"+bucket+"/"+*obj.Key)
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(urls))
	return urls, nil
}
