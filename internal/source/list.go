package source

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// audioExtensions are the file extensions ListAudio treats as audio.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".mp4":  true,
	".flac": true,
	".ogg":  true,
	".aac":  true,
	".wma":  true,
	".webm": true,
}

// ListAudio enumerates the audio objects under prefix in the given bucket
// (the default bucket when bucket is empty), following pagination. Keys
// are returned in the order S3 lists them.
func (r *Resolver) ListAudio(ctx context.Context, bucket, prefix string) ([]string, error) {
	if bucket == "" {
		if r.defaultBucket == "" {
			return nil, ErrNoBucket
		}
		bucket = r.defaultBucket
	}

	client, err := r.clientForBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	var keys []string
	var token *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(Location{Bucket: bucket, Key: prefix}, err)
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			ext := strings.ToLower(filepath.Ext(*obj.Key))
			if audioExtensions[ext] {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}
