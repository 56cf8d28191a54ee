package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// s3Client is the subset of *s3.Client the store needs, narrowed for
// testability the same way rescale-int narrows its provider SDKs
// behind a small interface instead of depending on the full client.
type s3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store is a Store backed by an S3-compatible bucket.
type S3Store struct {
	client s3Client
	bucket string
}

// NewS3Store wraps an s3.Client for a single bucket.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "OpenRead", "get object failed: "+key, err)
	}

	return out.Body, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, apperr.Wrap(apperr.KindStorage, "objectstore", "Exists", "head object failed: "+key, err)
	}

	return true, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, key string) (*StorageObject, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "GetMetadata", "head object failed: "+key, err)
	}

	obj := &StorageObject{
		Key:          key,
		UserMetadata: out.Metadata,
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ETag != nil {
		obj.ETag = strings.Trim(*out.ETag, `"`)
	}
	if out.LastModified != nil {
		obj.LastModified = *out.LastModified
	}

	return obj, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]StorageObject, error) {
	var objects []StorageObject

	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "objectstore", "List", "list objects failed: "+prefix, err)
		}

		for _, obj := range out.Contents {
			so := StorageObject{}
			if obj.Key != nil {
				so.Key = *obj.Key
			}
			if obj.Size != nil {
				so.ContentLength = *obj.Size
			}
			if obj.ETag != nil {
				so.ETag = strings.Trim(*obj.ETag, `"`)
			}
			if obj.LastModified != nil {
				so.LastModified = *obj.LastModified
			}

			objects = append(objects, so)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}

		continuationToken = out.NextContinuationToken
	}

	return objects, nil
}

func (s *S3Store) OpenWrite(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	return newS3Uploader(ctx, s.client, s.bucket, key, contentType), nil
}

func (s *S3Store) SetMetadata(ctx context.Context, key string, metadata map[string]string) error {
	// S3 has no in-place metadata update; a self-copy with REPLACE
	// directive is the standard idiom for mutating user metadata only.
	copySource := s.bucket + "/" + key

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "objectstore", "SetMetadata", "copy object failed: "+key, err)
	}

	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "objectstore", "Delete", "delete object failed: "+key, err)
	}

	return nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

// s3Uploader streams written bytes through a pipe into a single
// PutObject started when the uploader is created; Close ends the stream
// and waits for that PutObject to finish, matching io.WriteCloser
// semantics without requiring the caller to know about upload mechanics.
type s3Uploader struct {
	ctx         context.Context
	client      s3Client
	bucket      string
	key         string
	contentType string
	pr          *io.PipeReader
	pw          *io.PipeWriter
	done        chan error
}

func newS3Uploader(ctx context.Context, client s3Client, bucket, key, contentType string) *s3Uploader {
	pr, pw := io.Pipe()
	u := &s3Uploader{
		ctx: ctx, client: client, bucket: bucket, key: key, contentType: contentType,
		pr: pr, pw: pw, done: make(chan error, 1),
	}

	go func() {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String(contentType),
		})
		_ = pr.CloseWithError(err)
		u.done <- err
	}()

	return u
}

func (u *s3Uploader) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *s3Uploader) Close() error {
	if err := u.pw.Close(); err != nil {
		return err
	}

	if err := <-u.done; err != nil {
		return apperr.Wrap(apperr.KindStorage, "objectstore", "OpenWrite", "put object failed: "+u.key, err)
	}

	return nil
}
