package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// s3Uploader implements Uploader against Amazon S3 (or an S3-compatible
// store), grounded on MoiseiLiviu-story-generation-api's
// infrastructure/adapters/s3_segment_media_store.go. Each media kind is
// written to its own bucket, matching the two-bucket configuration
// surface of §6.
type s3Uploader struct {
	svc           s3iface.S3API
	bucketImages  string
	bucketAudio   string
	publicURLBase string
	logger        *zap.Logger
}

// NewS3Uploader builds a live Blob Uploader. publicURLBase, when
// non-empty, overrides the default "https://<bucket>.s3.amazonaws.com"
// URL template (useful for CDN fronting or S3-compatible stores).
func NewS3Uploader(svc s3iface.S3API, bucketImages, bucketAudio, publicURLBase string, logger *zap.Logger) Uploader {
	return &s3Uploader{
		svc:           svc,
		bucketImages:  bucketImages,
		bucketAudio:   bucketAudio,
		publicURLBase: publicURLBase,
		logger:        logger.Named("BlobUploader.s3"),
	}
}

func (u *s3Uploader) PutImage(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return u.put(ctx, u.bucketImages, storyID, sequence, KindImage, data)
}

func (u *s3Uploader) PutAudio(ctx context.Context, storyID uuid.UUID, sequence int, data []byte) (string, error) {
	return u.put(ctx, u.bucketAudio, storyID, sequence, KindAudio, data)
}

func (u *s3Uploader) put(ctx context.Context, bucket string, storyID uuid.UUID, sequence int, kind Kind, data []byte) (string, error) {
	if err := validate(data); err != nil {
		u.logger.Warn("rejecting undersized payload", zap.String("storyID", storyID.String()), zap.Int("sequence", sequence), zap.String("kind", string(kind)))
		return "", err
	}

	key := path(storyID, sequence, kind)
	_, err := u.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		u.logger.Error("s3 put failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case "AccessDenied", "NoSuchBucket":
				return "", fmt.Errorf("%w: %s", ErrNotWritable, aerr.Code())
			}
		}
		return "", fmt.Errorf("%w: %v", ErrNotWritable, err)
	}

	if u.publicURLBase != "" {
		return fmt.Sprintf("%s/%s/%s", u.publicURLBase, bucket, key), nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key), nil
}
