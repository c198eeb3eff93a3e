package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in, optFns...)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Config holds the settings for an S3-compatible document store
// (MinIO in development).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Client stores document content as objects, one object per docKey. The
// object ETag serves as the remote version: non-forced uploads send it as
// an If-Match precondition so a concurrent external change surfaces as a
// conflict instead of being overwritten.
type S3Client struct {
	cfg S3Config
	s3  *s3.Client
}

func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Client{cfg: cfg, s3: client}, nil
}

func objectKey(docKey string) string {
	return "documents/" + docKey
}

func (c *S3Client) GetFile(ctx context.Context, docKey string) (*FileInfo, error) {
	out, err := getObject(c.s3, ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey(docKey)),
	})
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", docKey, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", docKey, err)
	}

	return &FileInfo{Content: content, Version: etagVersion(out.ETag)}, nil
}

func (c *S3Client) PutFile(ctx context.Context, docKey string, content []byte, opts PutOptions) (*PutResult, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey(docKey)),
		Body:   bytes.NewReader(content),
	}
	if !opts.Force && opts.BaseVersion != "" {
		in.IfMatch = aws.String(`"` + opts.BaseVersion + `"`)
	}

	out, err := putObject(c.s3, ctx, in)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			code := respErr.HTTPStatusCode()
			switch {
			case code == http.StatusPreconditionFailed || code == http.StatusConflict:
				return &PutResult{Status: PutConflict, StatusCode: code}, nil
			case code >= http.StatusInternalServerError:
				return &PutResult{Status: PutTransientFailure, StatusCode: code}, nil
			}
		}
		return nil, fmt.Errorf("put %q: %w", docKey, err)
	}

	return &PutResult{Status: PutAccepted, Version: etagVersion(out.ETag)}, nil
}

// etagVersion normalizes an ETag header value into the opaque version
// string: the surrounding quotes are stripped.
func etagVersion(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, `"`)
}
