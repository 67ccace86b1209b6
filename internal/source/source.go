// Package source opens disk images for upload from the local filesystem or
// from an S3-compatible object store (s3://bucket/key).
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/loykin/hypercore/internal/common"
)

// ErrNotFound is matched by errors.Is when the image does not exist.
var ErrNotFound = errors.New("disk image not found")

// Image is an opened disk image. Close releases the underlying file or stream.
type Image struct {
	io.ReadCloser
	// Name is the base name of the image.
	Name string
	Size int64
}

// Opener opens a disk image by reference.
type Opener interface {
	Open(ctx context.Context, ref string) (*Image, error)
}

// S3Config configures the object store used for s3:// references.
// Empty credentials fall back to the default AWS credential chain.
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Region       string `mapstructure:"region" yaml:"region"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"secret_key" trim:"-"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// S3API is the subset of the S3 client used to read images.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Resolver opens local paths and s3:// references. The S3 client is created on
// first use.
type Resolver struct {
	cfg    S3Config
	logger *common.Logger

	once  sync.Once
	s3    S3API
	s3Err error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithS3Client uses c instead of building a client from S3Config.
func WithS3Client(c S3API) Option {
	return func(r *Resolver) {
		r.s3 = c
		r.once.Do(func() {})
	}
}

// NewResolver returns a Resolver for cfg.
func NewResolver(cfg S3Config, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg, logger: common.GetLogger().WithComponent("source")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParseS3URI splits s3://bucket/key. ok is false for anything else.
func ParseS3URI(ref string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Open opens ref, which is a local path or an s3:// URI.
func (r *Resolver) Open(ctx context.Context, ref string) (*Image, error) {
	if strings.HasPrefix(ref, "s3://") {
		return r.openS3(ctx, ref)
	}
	return openFile(ref)
}

func openFile(ref string) (*Image, error) {
	clean := filepath.Clean(ref)
	info, err := os.Stat(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("disk file %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("stat disk file %s: %w", ref, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("disk file %s is not a regular file", ref)
	}
	// #nosec G304 -- path is the operator-supplied image location
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open disk file %s: %w", ref, err)
	}
	return &Image{ReadCloser: f, Name: filepath.Base(clean), Size: info.Size()}, nil
}

func (r *Resolver) client(ctx context.Context) (S3API, error) {
	r.once.Do(func() {
		opts := []func(*config.LoadOptions) error{}
		if r.cfg.Region != "" {
			opts = append(opts, config.WithRegion(r.cfg.Region))
		}
		if r.cfg.AccessKey != "" || r.cfg.SecretKey != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(r.cfg.AccessKey, r.cfg.SecretKey, "")))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			r.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		r.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if r.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(r.cfg.Endpoint)
			}
			o.UsePathStyle = r.cfg.UsePathStyle
		})
	})
	return r.s3, r.s3Err
}

func (r *Resolver) openS3(ctx context.Context, ref string) (*Image, error) {
	bucket, key, ok := ParseS3URI(ref)
	if !ok {
		return nil, fmt.Errorf("invalid S3 reference %q, expected s3://bucket/key", ref)
	}
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("disk object %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	size := aws.ToInt64(out.ContentLength)
	if out.ContentLength == nil || size < 0 {
		_ = out.Body.Close()
		return nil, fmt.Errorf("object %s in bucket %s has no content length", key, bucket)
	}
	r.logger.Debug("opened disk object", "bucket", bucket, "key", key, "size", size)
	return &Image{ReadCloser: out.Body, Name: path.Base(key), Size: size}, nil
}

// isNotFoundError checks if the error is a missing key or bucket.
func isNotFoundError(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}

	// S3-compatible services may not return the typed errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NoSuchBucket" || code == "NotFound"
	}
	return false
}
