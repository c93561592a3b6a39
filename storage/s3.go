package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/metrics"
)

// S3Backend implements a storage backend using Amazon S3 or compatible
// services. Every operation is a single request against the bucket; folders
// are represented by zero-byte marker keys with a trailing slash, the common
// object-store convention.
type S3Backend struct {
	client     *s3.S3
	bucketName string
	prefix     string
	region     string
	endpoint   string
	publicBase string
	retry      RetryPolicy
	log        *slog.Logger
}

// NewS3Backend creates a new S3 storage backend from cfg. When access keys
// are present they are used as static credentials; otherwise the SDK's
// default chain applies (environment, instance profile).
func NewS3Backend(cfg interfaces.BackendConfig, log *slog.Logger) (*S3Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg := aws.Config{
		Region: aws.String(region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		log.Warn("No S3 credentials provided - relying on the SDK default chain",
			slog.String("bucket", cfg.Bucket))
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Backend{
		client:     s3.New(sess),
		bucketName: cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		region:     region,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		retry:      DefaultRetryPolicy(),
		log:        log,
	}, nil
}

// Save uploads data to the bucket and returns its public URL.
func (b *S3Backend) Save(ctx context.Context, p interfaces.LogicalPath, data []byte) (string, error) {
	start := time.Now()
	key := b.objectKey(p)

	err := b.retry.Do(ctx, func() error {
		_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return classifyS3Error(err)
	})
	if err != nil {
		metrics.OpsTotal.WithLabelValues("s3", "save", "error").Inc()
		b.log.Error("Failed to upload object to S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored content in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	metrics.OpsTotal.WithLabelValues("s3", "save", "ok").Inc()

	return b.PublicURL(p), nil
}

// Get retrieves an object from the bucket, or interfaces.ErrNotFound.
func (b *S3Backend) Get(ctx context.Context, p interfaces.LogicalPath) ([]byte, error) {
	start := time.Now()
	key := b.objectKey(p)

	var data []byte
	err := b.retry.Do(ctx, func() error {
		result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return classifyS3Error(err)
		}
		defer result.Body.Close()

		data, err = io.ReadAll(result.Body)
		if err != nil {
			return Transient(fmt.Errorf("failed to read object body: %w", err))
		}
		return nil
	})
	if err != nil {
		if isS3NotFound(err) {
			metrics.OpsTotal.WithLabelValues("s3", "get", "miss").Inc()
			b.log.Debug("Content not found in S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrNotFound
		}
		metrics.OpsTotal.WithLabelValues("s3", "get", "error").Inc()
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	b.log.Debug("Fetched content from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	metrics.OpsTotal.WithLabelValues("s3", "get", "ok").Inc()

	return data, nil
}

// Delete removes an object. Deleting a missing key reports false, not an
// error; S3 DeleteObject is itself idempotent, so existence is checked first
// to produce the report.
func (b *S3Backend) Delete(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	existed, err := b.Exists(ctx, p)
	if err != nil {
		return false, err
	}

	key := b.objectKey(p)
	err = b.retry.Do(ctx, func() error {
		_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(key),
		})
		return classifyS3Error(err)
	})
	if err != nil {
		metrics.OpsTotal.WithLabelValues("s3", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete object from S3: %w", err)
	}

	metrics.OpsTotal.WithLabelValues("s3", "delete", "ok").Inc()
	return existed, nil
}

// Exists reports whether an object is present at path.
func (b *S3Backend) Exists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	key := b.objectKey(p)

	err := b.retry.Do(ctx, func() error {
		_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(key),
		})
		return classifyS3Error(err)
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object in S3: %w", err)
	}
	return true, nil
}

// PublicURL derives the object URL by template from path and configuration.
// Key segments are escaped so the result is a valid URL for any stored name.
func (b *S3Backend) PublicURL(p interfaces.LogicalPath) string {
	key := escapePath(b.objectKey(p))
	if b.publicBase != "" {
		return b.publicBase + "/" + key
	}
	if b.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucketName, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucketName, b.region, key)
}

// CreateDirectory writes the zero-byte marker key for the folder.
func (b *S3Backend) CreateDirectory(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	marker := b.objectKey(p) + "/"

	exists, err := b.DirectoryExists(ctx, p)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = b.retry.Do(ctx, func() error {
		_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(marker),
			Body:   bytes.NewReader(nil),
		})
		return classifyS3Error(err)
	})
	if err != nil {
		return false, fmt.Errorf("failed to create directory marker in S3: %w", err)
	}
	return true, nil
}

// DirectoryExists reports whether any key lives under the folder prefix.
func (b *S3Backend) DirectoryExists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	prefix := b.objectKey(p) + "/"

	var found bool
	err := b.retry.Do(ctx, func() error {
		out, err := b.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(b.bucketName),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int64(1),
		})
		if err != nil {
			return classifyS3Error(err)
		}
		found = aws.Int64Value(out.KeyCount) > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to list directory prefix in S3: %w", err)
	}
	return found, nil
}

// ListDirectories returns the common prefixes directly under base.
func (b *S3Backend) ListDirectories(ctx context.Context, base interfaces.LogicalPath) ([]string, error) {
	prefix := b.objectKey(base) + "/"

	var dirs []string
	err := b.retry.Do(ctx, func() error {
		out, err := b.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:    aws.String(b.bucketName),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		})
		if err != nil {
			return classifyS3Error(err)
		}
		dirs = dirs[:0]
		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), prefix), "/")
			if name != "" {
				dirs = append(dirs, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directories in S3: %w", err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Provision creates the category and subfolder markers for a tenant.
func (b *S3Backend) Provision(ctx context.Context, tenant string, categories, subfolders []string) ([]string, error) {
	var created []string
	for _, category := range categories {
		p, err := interfaces.NewLogicalPath(tenant, category)
		if err != nil {
			return created, err
		}
		if _, err := b.CreateDirectory(ctx, p); err != nil {
			return created, fmt.Errorf("provisioning %s: %w", p.Key(), err)
		}
		created = append(created, p.Key())

		for _, sub := range subfolders {
			sp, err := p.Join(sub)
			if err != nil {
				return created, err
			}
			if _, err := b.CreateDirectory(ctx, sp); err != nil {
				return created, fmt.Errorf("provisioning %s: %w", sp.Key(), err)
			}
			created = append(created, sp.Key())
		}
	}

	b.log.Debug("Provisioned tenant hierarchy in S3",
		slog.String("tenant", tenant),
		slog.String("bucket", b.bucketName),
		slog.Int("folders", len(created)))
	return created, nil
}

// Kind returns the backend kind tag.
func (b *S3Backend) Kind() interfaces.BackendKind {
	return interfaces.KindS3
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// objectKey maps a logical path to its bucket key.
func (b *S3Backend) objectKey(p interfaces.LogicalPath) string {
	if b.prefix == "" {
		return p.Key()
	}
	return path.Join(b.prefix, p.Key())
}

// classifyS3Error sorts SDK errors into the shared taxonomy: 429 and 5xx are
// transient, bucket/auth failures are permanent, missing keys pass through
// for the caller to map onto ErrNotFound.
func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}

	if reqErr, ok := err.(awserr.RequestFailure); ok {
		status := reqErr.StatusCode()
		switch {
		case status == 404:
			return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		case status == 429 || status >= 500:
			return Transient(err)
		case status >= 400:
			return fmt.Errorf("%w: %v", interfaces.ErrPermanentBackend, err)
		}
	}

	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		case "RequestCanceled":
			return err
		}
	}

	if _, ok := err.(*url.Error); ok {
		return Transient(err)
	}

	// Connection-level failures without an HTTP status are worth a retry.
	return Transient(err)
}

// isS3NotFound reports whether a classified error denotes a missing key.
func isS3NotFound(err error) bool {
	return errors.Is(err, interfaces.ErrNotFound)
}
