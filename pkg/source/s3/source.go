// Package s3 implements the source interface for AWS S3 and S3-compatible
// object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/coppermind/ingrain/pkg/source"
)

// DefaultMaxKeys is the page size for ListObjectsV2 requests.
const DefaultMaxKeys = 1000

// Source lists and reads objects under a bucket/prefix.
//
// S3 exposes no rename-stable object identity, so unique ids are the object
// keys: a renamed object surfaces to reconciliation as delete + add, which
// matches the remove-then-add index semantics anyway. Fingerprints are
// etag+size.
type Source struct {
	client  *s3.Client
	id      string
	bucket  string
	prefix  string
	limiter *rate.Limiter
}

var _ source.Source = (*Source)(nil)

// Config configures an S3 source.
//
// Authentication follows the AWS SDK v2 default chain unless explicit
// credentials are provided. For S3-compatible stores (MinIO, Wasabi), set
// Endpoint and typically ForcePathStyle.
type Config struct {
	// Name is the stable source id scoping the ledger.
	// Defaults to "s3://<bucket>/<prefix>".
	Name string

	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix restricts the sync to keys under this prefix.
	Prefix string

	// Region is the AWS region. Empty lets the SDK resolve from env/profile.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the AWS shared-config profile name.
	Profile string

	// AccessKeyID / SecretAccessKey are explicit credentials. If one is
	// set, both must be set; they take precedence over the default chain.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	// Required for most S3-compatible stores.
	ForcePathStyle bool

	// RateLimit is the maximum requests per second against the backend.
	// Zero means unlimited.
	RateLimit float64
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("bucket is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return fmt.Errorf("access key id and secret access key must be provided together")
	}
	return nil
}

// New creates an S3 source.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	id := strings.TrimSpace(cfg.Name)
	if id == "" {
		id = "s3://" + cfg.Bucket
		if cfg.Prefix != "" {
			id += "/" + strings.TrimPrefix(cfg.Prefix, "/")
		}
	}

	src := &Source{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		id:     id,
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
	}
	if cfg.RateLimit > 0 {
		src.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return src, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func (s *Source) ID() string { return s.id }

func (s *Source) Describe() map[string]string {
	return map[string]string{
		"source": s.id,
		"type":   "s3",
		"bucket": s.bucket,
		"prefix": s.prefix,
	}
}

func (s *Source) Close() error { return nil }

func (s *Source) List(ctx context.Context) ([]source.Item, error) {
	var items []source.Item
	var continuation *string

	for {
		if err := s.waitForRateLimit(ctx); err != nil {
			return nil, err
		}

		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			MaxKeys:           aws.Int32(DefaultMaxKeys),
			ContinuationToken: continuation,
		}
		if s.prefix != "" {
			input.Prefix = aws.String(s.prefix)
		}

		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, s.wrapError("List", "", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			path := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			if path == "" {
				// The prefix itself listed as a zero-byte directory marker.
				continue
			}
			size := aws.ToInt64(obj.Size)
			items = append(items, source.Item{
				UniqueID:    "key:" + key,
				Path:        path,
				Fingerprint: fmt.Sprintf("%s-%x", cleanETag(aws.ToString(obj.ETag)), size),
				Size:        size,
				ModTime:     aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		continuation = output.NextContinuationToken
	}

	return items, nil
}

func (s *Source) Read(ctx context.Context, item source.Item) ([]byte, error) {
	if err := s.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(item)),
	})
	if err != nil {
		return nil, s.wrapError("Read", item.Path, err)
	}
	defer func() { _ = output.Body.Close() }()

	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, s.wrapError("Read", item.Path, err)
	}
	return b, nil
}

// objectKey recovers the object key recorded at listing time. A prefix may
// end mid-segment ("logs/2024" matching "logs/2024-01/x.md"), so the key
// cannot be rebuilt from prefix + path.
func (s *Source) objectKey(item source.Item) string {
	if key, ok := strings.CutPrefix(item.UniqueID, "key:"); ok && key != "" {
		return key
	}
	if s.prefix == "" {
		return item.Path
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + item.Path
}

func (s *Source) waitForRateLimit(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// wrapError converts S3 errors to source errors with appropriate sentinels.
func (s *Source) wrapError(op, path string, err error) error {
	wrapped := &source.Error{Op: op, Source: s.id, Path: path, Err: err}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		wrapped.Err = source.ErrNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			wrapped.Err = source.ErrNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = source.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = source.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = source.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = source.ErrUnavailable
		}
	}
	return wrapped
}

// cleanETag removes surrounding quotes from an ETag value.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}
