package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"sitesync/internal/config"
)

// S3 uploads to an S3 bucket or an S3-compatible endpoint.
type S3 struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3 loads the default AWS configuration, overlaid with any static
// credentials, region and endpoint from cfg.
func NewS3(ctx context.Context, cfg config.S3) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			// Many S3-compatible stores reject streaming trailer checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		})
	}
	if cfg.UsePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	return &S3{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

func (u *S3) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	dest, err := CleanDestination(destination)
	if err != nil {
		return "", err
	}
	key := joinKey(u.prefix, dest)

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(http.DetectContentType(payload)),
		Metadata: map[string]string{
			"writer": "sitesync",
		},
	})
	if err != nil {
		return "", classifyS3Error(fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err))
	}
	return "s3://" + u.bucket + "/" + key, nil
}

var permanentS3Codes = map[string]bool{
	"AccessDenied":          true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"EntityTooLarge":        true,
	"KeyTooLongError":       true,
}

func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentS3Codes[apiErr.ErrorCode()] {
		return Permanent(err)
	}
	return err
}
