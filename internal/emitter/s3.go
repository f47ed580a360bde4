package emitter

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3API defines the S3 operations used to upload results.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Emitter uploads each payload as a JSON object under a prefix.
type S3Emitter struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Emitter creates an S3 emitter from an AWS config.
func NewS3Emitter(cfg aws.Config, bucket, prefix string) *S3Emitter {
	return newS3Emitter(s3.NewFromConfig(cfg), bucket, prefix)
}

func newS3Emitter(client S3API, bucket, prefix string) *S3Emitter {
	return &S3Emitter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key used for name.
func (e *S3Emitter) Key(name string) string {
	return path.Join(e.prefix, name+".json")
}

// Emit uploads the JSON encoded payload.
func (e *S3Emitter) Emit(ctx context.Context, name string, payload any) error {
	data, err := Encode(FormatJSON, payload)
	if err != nil {
		return err
	}

	key := e.Key(name)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", e.bucket, key, err)
	}

	log.Info().Str("bucket", e.bucket).Str("key", key).Msg("output uploaded")
	return nil
}

// Close is a no-op for S3 emitter.
func (e *S3Emitter) Close() error {
	return nil
}
