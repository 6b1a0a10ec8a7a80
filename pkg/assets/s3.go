package assets

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client the source uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source serves compiled assets from an S3 bucket.
//
//	client := s3.New(s3.Options{Region: "eu-west-1"})
//	src := assets.NewS3Source(client, "my-assets", "dist/")
type S3Source struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Source creates a source reading keys prefix+name from bucket.
func NewS3Source(client s3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, name string) (*Object, error) {
	key := s.prefix + name
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, s.bucket, key)
		}
		return nil, fmt.Errorf("assets: s3 get %s: %w", key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	obj := &Object{
		Body:        out.Body,
		Size:        size,
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
	}
	if obj.ContentType == "" {
		obj.ContentType = mime.TypeByExtension(path.Ext(name))
	}
	return obj, nil
}
