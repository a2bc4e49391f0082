// Package storage talks to an S3-compatible bucket (AWS S3 or Cloudflare R2)
// holding source models and published renders.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/loaders"
)

// Bucket is an S3 bucket bound to a client
type Bucket struct {
	client *s3.Client
	name   string
}

// NewBucket builds a client from the storage configuration. A custom
// endpoint selects an S3-compatible service such as R2.
func NewBucket(ctx context.Context, cfg config.StorageConfig) (*Bucket, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return &Bucket{client: client, name: cfg.Bucket}, nil
}

// Name returns the bucket name
func (b *Bucket) Name() string { return b.name }

// Exists reports whether key is present in the bucket
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Fetch downloads key into dst, writing through a temporary file so an
// interrupted download never leaves a truncated model in the cache
func (b *Bucket) Fetch(ctx context.Context, key, dst string) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: s3://%s/%s", loaders.ErrModelNotFound, b.name, key)
		}
		return fmt.Errorf("downloading s3://%s/%s: %w", b.name, key, err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("downloading s3://%s/%s: %w", b.name, key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Upload stores the file at src under key
func (b *Bucket) Upload(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(src)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", src, b.name, key, err)
	}
	return nil
}

// UploadDir uploads every regular file below dir under prefix and returns the keys written
func (b *Bucket) UploadDir(ctx context.Context, dir, prefix string) ([]string, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(files))
	for _, rel := range files {
		key := ObjectKey(prefix, rel)
		if err := b.Upload(ctx, filepath.Join(dir, rel), key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ListFiles returns the slash-separated paths of regular files below dir, in lexical order
func ListFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return files, nil
}

// ObjectKey joins a key prefix and a slash-separated relative path
func ObjectKey(prefix, rel string) string {
	return path.Join(prefix, rel)
}

// RenderPrefix is the key prefix that receives a run's outputs
func RenderPrefix(id string) string {
	return path.Join("renders", id)
}

// ContentType guesses the MIME type of a render output
func ContentType(name string) string {
	switch filepath.Ext(name) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".exr":
		return "image/x-exr"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
