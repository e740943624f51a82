package storage

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/rs/zerolog"
)

const (
	// PageSize is the max-keys bound of every listing request.
	PageSize int32 = 1000

	// BucketRoot is logged in place of a prefix for whole-bucket scans.
	BucketRoot = "<bucket-root>"

	listOp = "ListObjectsV2"
)

// Scanner sums object sizes under a prefix by paginating ListObjectsV2.
type Scanner struct {
	client s3.ListObjectsV2APIClient
}

func NewScanner(client s3.ListObjectsV2APIClient) *Scanner {
	return &Scanner{client: client}
}

// SumPrefixSize lists every object under prefix and returns the byte total,
// object count and number of requests issued. A nil prefix scans the whole
// bucket. The first request is always issued, so APICalls is at least 1 even
// for an empty listing. Any failure aborts the scan without a partial result.
func (s *Scanner) SumPrefixSize(ctx context.Context, bucket string, prefix *string) (domain.ScanResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  prefix,
		MaxKeys: aws.Int32(PageSize),
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = PageSize
	})

	var result domain.ScanResult
	for paginator.HasMorePages() {
		result.APICalls++
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return domain.ScanResult{}, s.fail(ctx, bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			result.BytesTotal += aws.ToInt64(obj.Size)
			result.ObjectsCount++
		}
	}

	return result, nil
}

func (s *Scanner) fail(ctx context.Context, bucket string, prefix *string, err error) error {
	logged := BucketRoot
	if prefix != nil {
		logged = *prefix
	}

	spErr := &domain.StorageProviderError{
		Op:     listOp,
		Bucket: bucket,
		Prefix: aws.ToString(prefix),
		Err:    err,
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		spErr.Code = apiErr.ErrorCode()
	}

	zerolog.Ctx(ctx).Error().
		Err(err).
		Str("bucket", bucket).
		Str("prefix", logged).
		Str("code", spErr.Code).
		Msg("failed to list objects")

	return spErr
}
