// Package s3archive stores settled escrow bundles in an S3-compatible
// object store (AWS S3, MinIO, R2).
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mmynk/crowdpay/internal/archive"
	"github.com/mmynk/crowdpay/internal/record"
)

// contentType marks objects as protobuf-wire encoded records.
const contentType = "application/x-protobuf"

// Ensure Archiver implements archive.Archiver
var _ archive.Archiver = (*Archiver)(nil)

// ClientConfig holds the configuration for connecting to an S3-compatible
// object store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint string

	// Region is the AWS region or equivalent for the provider.
	Region string

	// Bucket receives every archived bundle.
	Bucket string

	// AccessKey and SecretKey are static credentials. When both are empty
	// the default AWS credential chain is used.
	AccessKey string
	SecretKey string

	// ForcePathStyle puts the bucket in the path rather than the host
	// name. Required by MinIO and most S3-compatible providers.
	ForcePathStyle bool
}

// Archiver writes bundles as single objects.
type Archiver struct {
	client *s3.Client
	bucket string
}

// New creates an Archiver from cfg.
func New(ctx context.Context, cfg ClientConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3archive: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Archive uploads the encoded bundle under bundle.Key().
func (a *Archiver) Archive(ctx context.Context, bundle *archive.Bundle) error {
	key := bundle.Key()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(record.MarshalBundle(bundle)),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3archive: put object %s: %w", key, err)
	}
	return nil
}

// Fetch downloads and decodes the bundle archived for groupID. It returns
// archive.ErrNotArchived when the object does not exist.
func (a *Archiver) Fetch(ctx context.Context, groupID string) (*archive.Bundle, error) {
	key := archive.KeyFor(groupID)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3archive: %s: %w", key, archive.ErrNotArchived)
		}
		return nil, fmt.Errorf("s3archive: get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3archive: read object %s: %w", key, err)
	}
	bundle, err := record.UnmarshalBundle(data)
	if err != nil {
		return nil, fmt.Errorf("s3archive: %s: %w", key, err)
	}
	return bundle, nil
}

// normaliseEndpoint prepends https:// when endpoint has no scheme.
func normaliseEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
