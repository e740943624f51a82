package storage

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	DefaultRegion = "us-east-1" // Default region if not specified
)

// Settings selects how the S3 client authenticates and where it connects.
// Endpoint is only set for S3-compatible stores and switches to path-style addressing.
type Settings struct {
	Region    string
	Profile   string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func LoadConfig(ctx context.Context, settings Settings) (*awssdk.Config, error) {
	region := settings.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if settings.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(settings.Profile))
	}
	if settings.AccessKey != "" || settings.SecretKey != "" {
		if settings.AccessKey == "" || settings.SecretKey == "" {
			return nil, fmt.Errorf("both s3 access key and secret key are required for static credentials")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	// Test the credentials
	_, err = awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid AWS credentials: %w", err)
	}

	return &awsCfg, nil
}

// NewClient builds the S3 client used by the Scanner.
func NewClient(ctx context.Context, settings Settings) (*s3.Client, error) {
	cfg, err := LoadConfig(ctx, settings)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(*cfg, clientOptions(settings)...), nil
}

func clientOptions(settings Settings) []func(*s3.Options) {
	if settings.Endpoint == "" {
		return nil
	}
	return []func(*s3.Options){
		func(o *s3.Options) {
			o.BaseEndpoint = awssdk.String(settings.Endpoint)
			o.UsePathStyle = true
		},
	}
}
