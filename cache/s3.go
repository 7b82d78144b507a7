package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// metadata entry holding the full cache key of an object
const s3KeyMetadata = "autocache-key"

// S3API is the part of the S3 client used by S3Backend.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend stores each variant as an object named
// <namespace>/<sha256(prefix)>/<sha256(key)>.
type S3Backend struct {
	client    S3API
	bucket    string
	namespace string
}

func NewS3Backend(client S3API, bucket, namespace string) *S3Backend {
	if namespace == "" {
		namespace = "autocache"
	}
	return &S3Backend{
		client:    client,
		bucket:    bucket,
		namespace: strings.Trim(namespace, "/"),
	}
}

// NewS3BackendFromConfig loads the AWS config from the environment
// (AWS_PROFILE, shared config, IMDS...) and creates a backend for the bucket.
func NewS3BackendFromConfig(ctx context.Context, bucket, region, namespace string) (*S3Backend, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Backend(s3.NewFromConfig(cfg), bucket, namespace), nil
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (b *S3Backend) prefixPath(prefix string) string {
	return b.namespace + "/" + hash(prefix) + "/"
}

func (b *S3Backend) objectKey(prefix, key string) string {
	return b.prefixPath(prefix) + hash(key)
}

func (b *S3Backend) Variants(ctx context.Context, prefix string) ([]Entry, error) {
	entries := make([]Entry, 0)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefixPath(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			entry, found, err := b.get(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			if found {
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

func (b *S3Backend) get(ctx context.Context, objectKey string) (Entry, bool, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		// deleted after listing
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("s3 get %s: %w", objectKey, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, false, fmt.Errorf("s3 read %s: %w", objectKey, err)
	}
	encodedKey, ok := out.Metadata[s3KeyMetadata]
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if !ok || err != nil {
		// the object can never be matched, remove it
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(objectKey),
		}); err != nil {
			return Entry{}, false, fmt.Errorf("%w: s3 object %s: delete: %v", ErrCorruptEntry, objectKey, err)
		}
		return Entry{}, false, nil
	}
	return Entry{Key: string(key), Bytes: body}, true, nil
}

func (b *S3Backend) Put(ctx context.Context, prefix, key string, bts []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(prefix, key)),
		Body:          bytes.NewReader(bts),
		ContentLength: aws.Int64(int64(len(bts))),
		Metadata: map[string]string{
			s3KeyMetadata: base64.StdEncoding.EncodeToString([]byte(key)),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

func (b *S3Backend) Delete(ctx context.Context, prefix, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(prefix, key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func (b *S3Backend) Close() error {
	return nil
}
