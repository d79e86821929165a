package source

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

type s3Backend struct {
	api    s3iface.S3API
	bucket string
	prefix string
}

func defaultS3(region string) (s3iface.S3API, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

func newS3Backend(u *url.URL, api s3iface.S3API) *s3Backend {
	return &s3Backend{
		api:    api,
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}
}

func (b *s3Backend) key(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func (b *s3Backend) fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	k := b.key(key)
	out, err := b.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
				return nil, errors.WithMessage(ErrNotFound, "s3://"+b.bucket+"/"+k)
			}
		}
		return nil, errors.Wrapf(err, "get s3://%s/%s", b.bucket, k)
	}
	return out.Body, nil
}

func (b *s3Backend) String() string {
	return "s3://" + path.Join(b.bucket, b.prefix)
}
