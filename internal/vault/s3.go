package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vidup/internal/vidup"
)

// s3RequestTimeout bounds each vault call; the Vault interface has no context.
const s3RequestTimeout = 5 * time.Minute

type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Options configures an S3Vault. Endpoint and the static keys are optional;
// without keys the default AWS credential chain is used.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Vault stores metadata in an S3 bucket (or any S3-compatible store)
// using the same layout as FileSystemVault under an optional prefix:
//
//	<prefix>/metadata/<hostID>/<name>
//	<prefix>/metadata/<hostID>/<name>.version
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   s3Client
	uploader s3Uploader
}

// NewS3Vault creates an S3Vault from options, loading AWS configuration.
func NewS3Vault(name string, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3VaultWithClient(name, opts.Bucket, opts.Prefix, client, manager.NewUploader(client)), nil
}

func newS3VaultWithClient(name, bucket, prefix string, client s3Client, uploader s3Uploader) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: uploader,
	}
}

func (v *S3Vault) key(hostID, name string) (string, error) {
	for _, part := range []string{hostID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid metadata key %q/%q", hostID, name)
		}
	}
	return path.Join(v.prefix, "metadata", hostID, name), nil
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// PutMetadata uploads the item, then its version marker.
func (v *S3Vault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	key, err := v.key(hostID, name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	body := &countingReader{r: r}
	if _, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   body,
	}); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if body.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, body.n)
	}

	versionData := strconv.FormatInt(version, 10)
	if _, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key + ".version"),
		Body:   strings.NewReader(versionData),
	}); err != nil {
		return fmt.Errorf("uploading version for %s: %w", key, err)
	}
	return nil
}

// GetMetadata downloads the item into w.
func (v *S3Vault) GetMetadata(hostID string, name string, w io.Writer) error {
	key, err := v.key(hostID, name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %q for host %s", ErrMetadataNotFound, name, hostID)
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// GetMetadataVersion returns 0 when no version marker exists.
func (v *S3Vault) GetMetadataVersion(hostID string, name string) (int64, error) {
	key, err := v.key(hostID, name)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key + ".version"),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version for %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("reading version for %s: %w", key, err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

// Compile-time check that S3Vault implements vidup.Vault interface
var _ vidup.Vault = (*S3Vault)(nil)
