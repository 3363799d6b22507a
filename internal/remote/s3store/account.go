package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// wrap turns SDK errors that carry an HTTP response into rejections and
// leaves transport failures as they are.
func (s *Store) wrap(op string, err error) error {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		s.log.Error().Err(err).Str("op", op).Str("bucket", s.bucket).Msg("s3 request failed")
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	msg := http.StatusText(respErr.HTTPStatusCode())
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		msg = apiErr.ErrorMessage()
	} else if errors.As(err, &apiErr) {
		msg = apiErr.ErrorCode()
	}
	s.log.Warn().Int("status", respErr.HTTPStatusCode()).Str("op", op).Msg(msg)
	return fmt.Errorf("failed to %s: %w", op, remote.Rejected(respErr.HTTPStatusCode(), msg))
}

// HeadBucket checks if a bucket exists and is accessible
func (s *Store) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		werr := s.wrap("access bucket", err)
		if remote.IsNotFound(werr) {
			return remote.Rejected(http.StatusNotFound, fmt.Sprintf("bucket '%s' does not exist", s.bucket))
		}
		return werr
	}
	return nil
}

// SetCredential is a no-op, the bucket is reached with static keys.
func (s *Store) SetCredential(string) {}

func unsupported() error {
	return remote.Rejected(http.StatusNotImplemented, "accounts are managed by the bucket owner; "+remote.ErrUnsupported.Error())
}

// Register is not supported by buckets
func (s *Store) Register(context.Context, models.Credentials) (models.AuthResult, error) {
	return models.AuthResult{}, unsupported()
}

// Login is not supported by buckets
func (s *Store) Login(context.Context, models.Credentials) (models.AuthResult, error) {
	return models.AuthResult{}, unsupported()
}

// Check verifies bucket access and describes the bucket as the user
func (s *Store) Check(ctx context.Context) (models.AuthResult, error) {
	if err := s.HeadBucket(ctx); err != nil {
		return models.AuthResult{}, err
	}
	user, err := s.user(ctx)
	return models.AuthResult{User: user}, err
}

func (s *Store) user(ctx context.Context) (models.User, error) {
	user := models.User{ID: s.bucket, Email: "s3://" + s.bucket}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(avatarPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return user, s.wrap("list objects", err)
	}
	if len(out.Contents) > 0 {
		user.Avatar = out.Contents[0].Key
	}
	return user, nil
}

// SetAvatar stores the image under the hidden avatar prefix
func (s *Store) SetAvatar(ctx context.Context, name string, r io.Reader) (models.User, error) {
	if err := s.deletePrefix(ctx, avatarPrefix); err != nil {
		return models.User{}, err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(avatarPrefix + path.Base(name)),
		Body:   r,
	})
	if err != nil {
		return models.User{}, s.wrap("put object", err)
	}
	return s.user(ctx)
}

// ClearAvatar removes the stored avatar
func (s *Store) ClearAvatar(ctx context.Context) (models.User, error) {
	if err := s.deletePrefix(ctx, avatarPrefix); err != nil {
		return models.User{}, err
	}
	return s.user(ctx)
}
