package source

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Client is the subset of the S3 API the resolver uses. *s3.Client
// satisfies it; tests substitute a fake.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientFactory produces an S3 client bound to a region. The default
// factory loads the ambient AWS credential chain.
type ClientFactory func(ctx context.Context, region string) (Client, error)

// defaultClientFactory builds a real S3 client from the default AWS
// configuration sources (env, shared config, instance metadata).
func defaultClientFactory(ctx context.Context, region string) (Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("source: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// classify maps S3 API failures onto the package sentinel errors so
// callers can distinguish a missing object from a permissions problem.
func classify(loc Location, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
		case "AccessDenied", "Forbidden", "403":
			return fmt.Errorf("%w: %s", ErrAccessDenied, loc)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrNoSuchBucket, loc.Bucket)
		}
	}
	return fmt.Errorf("source: %s: %w", loc, err)
}

// bucketRegion asks S3 where a bucket lives. An empty location constraint
// is the API's way of saying us-east-1.
func bucketRegion(ctx context.Context, client Client, bucket string) (string, error) {
	out, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: &bucket})
	if err != nil {
		return "", err
	}
	region := string(out.LocationConstraint)
	if region == "" {
		region = "us-east-1"
	}
	return region, nil
}
