package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the part of the S3 API used by S3Publisher. *s3.Client satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config selects the bucket and endpoint. Endpoint is set for S3-compatible
// stores such as MinIO and switches to path-style addressing.
type S3Config struct {
	Bucket        string
	Prefix        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// NewS3Client builds an S3 client from static configuration. Without keys
// requests are sent unsigned.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			Source:          "avaass config",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	return s3.New(opts)
}

// S3Publisher uploads objects to a bucket.
type S3Publisher struct {
	client S3Client
	cfg    S3Config
}

func NewS3Publisher(client S3Client, cfg S3Config) *S3Publisher {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &S3Publisher{client: client, cfg: cfg}
}

func (p *S3Publisher) key(name string) string {
	if p.cfg.Prefix == "" {
		return name
	}
	return p.cfg.Prefix + "/" + name
}

func (p *S3Publisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	key := p.key(name)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	return p.URL(key), nil
}

// URL returns the public address of key.
func (p *S3Publisher) URL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case p.cfg.PublicBaseURL != "":
		return strings.TrimRight(p.cfg.PublicBaseURL, "/") + "/" + escaped
	case p.cfg.Endpoint != "":
		return strings.TrimRight(p.cfg.Endpoint, "/") + "/" + p.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, escaped)
	}
}
