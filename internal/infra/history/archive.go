// Where: internal/infra/history/archive.go
// What: S3 archive of rendered deploy scripts.
// Why: The exact script that ran is kept next to its ledger entry.
package history

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	keyTimeLayout     = "20060102T150405Z"
	scriptContentType = "text/x-shellscript"
)

// S3 rejects an explicit location constraint for its default region.
const defaultBucketRegion = "us-east-1"

var errBucketRequired = errors.New("history bucket is required")

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Archiver uploads scripts under <project>/<env>/.
type Archiver struct {
	api     S3API
	bucket  string
	project string
	region  string
}

// NewArchiver returns an Archiver for bucket. An empty region falls back to
// the region the S3 client was configured with.
func NewArchiver(api S3API, bucket, project, region string) (*Archiver, error) {
	if bucket == "" {
		return nil, errBucketRequired
	}
	if region == "" {
		if withOptions, ok := api.(interface{ Options() s3.Options }); ok {
			region = withOptions.Options().Region
		}
	}
	return &Archiver{api: api, bucket: bucket, project: project, region: region}, nil
}

// Key returns the object key for a script deployed to env at.
func Key(project, env string, at time.Time) string {
	return path.Join(project, env, at.UTC().Format(keyTimeLayout)+".sh")
}

// EnsureBucket creates the bucket when it does not exist.
func (a *Archiver) EnsureBucket(ctx context.Context) (bool, error) {
	_, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return false, nil
	}
	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	if _, err := a.api.CreateBucket(ctx, a.createBucketInput()); err != nil {
		return false, fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return true, nil
}

func (a *Archiver) createBucketInput() *s3.CreateBucketInput {
	in := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	if a.region != "" && a.region != defaultBucketRegion {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(a.region),
		}
	}
	return in
}

// Archive stores script and returns its key.
func (a *Archiver) Archive(ctx context.Context, env string, at time.Time, script string) (string, error) {
	key := Key(a.project, env, at)
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(script),
		ContentType: aws.String(scriptContentType),
	})
	if err != nil {
		return "", fmt.Errorf("archive script to s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}
