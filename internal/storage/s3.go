package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store keeps blobs in an S3 bucket. Large merged documents are uploaded
// in parts through the transfer manager.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	sealer   Sealer
}

// S3Options configures the bucket connection.
type S3Options struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Store creates a store. Static keys override the default AWS credential chain.
func NewS3Store(ctx context.Context, o S3Options, sealer Sealer) (*S3Store, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if o.Region != "" {
		opts = append(opts, awscfg.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return NewS3StoreFromClient(client, o.Bucket, o.Prefix, sealer), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket, prefix string, sealer Sealer) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		sealer:   sealer,
	}
}

func (s *S3Store) Backend() string { return "s3" }

func (s *S3Store) key(k string) string { return strings.TrimSuffix(s.prefix, "/") + "/" + strings.TrimPrefix(k, "/") }

func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	s3Metadata := map[string]string{
		"name":      meta.Name,
		"size":      strconv.Itoa(len(data)),
		"encrypted": strconv.FormatBool(s.sealer.Enabled()),
	}
	for k, v := range meta.Extra {
		s3Metadata[strings.ToLower(k)] = v
	}

	contentType := meta.ContentType
	if s.sealer.Enabled() || contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(sealed),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().Str("key", key).Str("location", out.Location).Int("size", len(sealed)).Msg("uploaded blob to S3")
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, Metadata{}, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to read S3 object: %w", err)
	}
	data, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to decrypt data: %w", err)
	}

	meta := Metadata{Size: int64(len(data)), Extra: map[string]string{}}
	for k, v := range result.Metadata {
		switch strings.ToLower(k) {
		case "name":
			meta.Name = v
		case "size", "encrypted":
		default:
			meta.Extra[strings.ToLower(k)] = v
		}
	}
	if result.ContentType != nil && !s.sealer.Enabled() {
		meta.ContentType = *result.ContentType
	}
	return data, meta, nil
}

func (s *S3Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	objs := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objs = append(objs, s3types.ObjectIdentifier{Key: aws.String(s.key(k))})
	}
	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3types.Delete{Objects: objs, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects failed: %w", err)
	}
	return nil
}

// Ping checks the bucket is reachable with the current credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}
