package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/util"
)

type s3API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

type s3Storage struct {
	logger logger.Logger
	bucket string
	prefix string
	s3     s3API
}

var _ Storage = (*s3Storage)(nil)

type bucketInfo struct {
	bucket   string
	prefix   string
	endpoint string
	region   string
}

// parseBucketURL supports s3://bucket/prefix and s3://host:port/bucket/prefix for s3 compatible endpoints.
func parseBucketURL(u *url.URL) bucketInfo {
	var info bucketInfo
	host := u.Host
	p := strings.Trim(u.Path, "/")
	if strings.Contains(host, ".") || strings.Contains(host, ":") || util.IsLocalhost(host) {
		tok := strings.SplitN(p, "/", 2)
		info.bucket = tok[0]
		if len(tok) > 1 {
			info.prefix = tok[1]
		}
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			info.endpoint = "http://" + host
		} else {
			info.endpoint = "https://" + host
		}
	} else {
		info.bucket = host
		info.prefix = p
	}
	if info.prefix != "" && !strings.HasSuffix(info.prefix, "/") {
		info.prefix += "/"
	}
	info.region = os.Getenv("AWS_REGION")
	if u.Query().Get("region") != "" {
		info.region = u.Query().Get("region")
	} else if info.region == "" {
		info.region = "us-west-2"
	}
	return info
}

// loadOptions uses static credentials when the url carries them (s3://key:secret@host/bucket),
// otherwise the default AWS credential chain.
func loadOptions(u *url.URL, info bucketInfo) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(info.region)}
	if u.User != nil {
		if secret, ok := u.User.Password(); ok {
			opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(u.User.Username(), secret, "")))
		}
	}
	return opts
}

func newS3Storage(ctx context.Context, logger logger.Logger, u *url.URL) (*s3Storage, error) {
	info := parseBucketURL(u)
	if info.bucket == "" {
		return nil, errors.Newf("missing bucket in url: %s", u.String())
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOptions(u, info)...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load AWS config")
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = true
		if info.endpoint != "" {
			o.BaseEndpoint = aws.String(info.endpoint)
		}
	})
	return &s3Storage{
		logger: logger.WithPrefix("[storage]"),
		bucket: info.bucket,
		prefix: info.prefix,
		s3:     client,
	}, nil
}

func (s *s3Storage) put(ctx context.Context, key string, buf []byte) error {
	_, err := s.s3.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.prefix + key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
	})
	return err
}

func (s *s3Storage) Setup(ctx context.Context) error {
	if err := s.put(ctx, Placeholder, []byte{}); err != nil {
		return errors.Wrapf(err, "unable to create placeholder in %s:%s", s.bucket, s.prefix)
	}
	check := ".check-" + uuid.NewString()
	if err := s.put(ctx, check, []byte("check")); err != nil {
		return errors.Wrapf(err, "bucket is not writable: %s", s.bucket)
	}
	if err := s.Delete(ctx, check); err != nil {
		return errors.Wrapf(err, "unable to remove check object: %s", check)
	}
	s.logger.Debug("bucket %s is writable", s.bucket)
	return nil
}

func (s *s3Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + cleaned),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.s3.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, "error storing s3 object to %s:%s", s.bucket, s.prefix+cleaned)
	}
	s.logger.Trace("stored %s:%s", s.bucket, s.prefix+cleaned)
	return nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.s3.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + cleaned),
	}); err != nil {
		return errors.Wrapf(err, "error deleting s3 object %s:%s", s.bucket, s.prefix+cleaned)
	}
	return nil
}

func (s *s3Storage) URL(key string) string {
	return "s3://" + s.bucket + "/" + s.prefix + key
}
