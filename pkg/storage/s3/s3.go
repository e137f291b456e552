// Package s3 reads log documents from S3 and S3-compatible object stores.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme prefixes object locations.
const Scheme = "s3://"

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		DownloadTimeout: 5 * time.Minute,
	}
}

// IsURI reports whether location names an object.
func IsURI(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// ParseURI splits s3://bucket/key.
func ParseURI(location string) (bucket, key string, err error) {
	if !IsURI(location) {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	rest := strings.TrimPrefix(location, Scheme)
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("s3 location needs a bucket and a key: %q", location)
	}
	return rest[:i], rest[i+1:], nil
}

// Client provides S3 reads.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultConfig().DownloadTimeout
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Object describes a fetched object.
type Object struct {
	Size            int64
	ContentEncoding string
	LastModified    time.Time
}

// Reader returns a reader for a key in bucket. The download is bounded by
// the configured timeout; closing the reader releases it.
func (c *Client) Reader(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)

	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, Object{}, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}

	obj := Object{
		Size:            aws.ToInt64(output.ContentLength),
		ContentEncoding: aws.ToString(output.ContentEncoding),
		LastModified:    aws.ToTime(output.LastModified),
	}
	return &cancelOnCloseReader{ReadCloser: output.Body, cancel: cancel}, obj, nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}
