package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/burrow-ai/burrow/internal/domain"
)

// S3ClientConfig holds configuration for the S3 loader client.
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3SourceConfig is the source descriptor for s3_object knowledge.
type S3SourceConfig struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// S3Loader loads knowledge content from S3-compatible object storage.
type S3Loader struct {
	client *s3.Client
}

// NewS3Loader creates a new S3Loader with the given configuration.
func NewS3Loader(ctx context.Context, cfg S3ClientConfig) (*S3Loader, error) {
	// Custom resolver for S3-compatible endpoints (e.g. MinIO)
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Loader{client: client}, nil
}

func (l *S3Loader) Load(ctx context.Context, k *domain.Knowledge) ([]*domain.Document, error) {
	var cfg S3SourceConfig
	if err := json.Unmarshal(k.SourceConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse s3 source config: %w", err)
	}
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("s3 source for knowledge %s needs bucket and key", k.KnowledgeID)
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", cfg.Bucket, cfg.Key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", cfg.Bucket, cfg.Key, err)
	}

	return []*domain.Document{
		{
			Content: string(body),
			Metadata: map[string]string{
				"bucket": cfg.Bucket,
				"key":    cfg.Key,
			},
		},
	}, nil
}
