package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/calorily/backend/config"
)

// S3ImageStore stores meal photos as JPEG objects keyed by meal id. Scaling
// and compression happen client-side; the store keeps the bytes as uploaded.
type S3ImageStore struct {
	s3Config *config.S3Config
}

// NewS3ImageStore creates a new S3ImageStore instance
func NewS3ImageStore(s3Config *config.S3Config) *S3ImageStore {
	return &S3ImageStore{s3Config: s3Config}
}

func imageObjectKey(mealID string) string {
	return fmt.Sprintf("meals/%s.jpg", mealID)
}

// Put uploads the image bytes for a meal.
func (s *S3ImageStore) Put(ctx context.Context, mealID string, imageBytes []byte) error {
	_, err := s.s3Config.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Config.BucketName),
		Key:         aws.String(imageObjectKey(mealID)),
		Body:        bytes.NewReader(imageBytes),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload image for meal %s: %w", mealID, err)
	}
	return nil
}

// Get downloads the image bytes for a meal.
func (s *S3ImageStore) Get(ctx context.Context, mealID string) ([]byte, error) {
	out, err := s.s3Config.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.s3Config.BucketName),
		Key:    aws.String(imageObjectKey(mealID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image for meal %s: %w", mealID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image for meal %s: %w", mealID, err)
	}
	return data, nil
}
