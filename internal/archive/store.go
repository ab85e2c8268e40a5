// Package archive keeps a copy of every confirmation slip PDF in S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes slip PDFs to a bucket. A Store without a bucket or client is disabled.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// SlipKey is the object key for a reference ID confirmed at the given time.
func SlipKey(referenceID string, confirmedAt time.Time) string {
	return fmt.Sprintf("slips/%d/%s.pdf", confirmedAt.UTC().Year(), referenceID)
}

// PutSlip stores the PDF and returns its key. Disabled stores return "" and no error.
func (s *Store) PutSlip(ctx context.Context, appointmentID, referenceID string, confirmedAt time.Time, pdf []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if referenceID == "" {
		return "", fmt.Errorf("archive: reference id required")
	}

	key := SlipKey(referenceID, confirmedAt)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(pdf),
		ContentLength:        aws.Int64(int64(len(pdf))),
		ContentType:          aws.String("application/pdf"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"appointment-id": appointmentID,
			"reference-id":   referenceID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived slip to S3", "appointment_id", appointmentID, "reference_id", referenceID, "s3_key", key, "bytes", len(pdf))
	return key, nil
}
