package impl

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes label images to an S3-compatible bucket (Cloudflare R2 in
// production) that is served publicly from PublicBaseURL.
type S3Store struct {
	client        putObjectAPI
	bucket        string
	publicBaseURL string
}

type S3StoreConfig struct {
	Bucket        string
	Region        string
	Endpoint      string // Custom endpoint (R2, MinIO); empty for AWS.
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// R2Endpoint is the S3 API endpoint of a Cloudflare account.
func R2Endpoint(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}

func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load object storage config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3StoreWithClient(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newS3StoreWithClient(client putObjectAPI, bucket string, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	defer metrics.BenchmarkMethod(time.Now(), "object_store.put", nil)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "put object %s", key)
	}
	return s.publicBaseURL + "/" + key, nil
}
