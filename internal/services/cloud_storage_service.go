package services

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSService archives knowledge PDFs and voice uploads in Google Cloud Storage.
type GCSService struct {
	client *storage.Client
}

func NewGCSService(ctx context.Context, opts ...option.ClientOption) (*GCSService, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSService{client: client}, nil
}

func (s *GCSService) UploadFile(ctx context.Context, bucketName, objectName, contentType string, content io.Reader) error {
	writer := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write %s: %w", objectName, err)
	}
	return writer.Close()
}

func (s *GCSService) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	reader, err := s.client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", objectName, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (s *GCSService) DeleteFile(ctx context.Context, bucketName, objectName string) error {
	return s.client.Bucket(bucketName).Object(objectName).Delete(ctx)
}

func (s *GCSService) Close() error {
	return s.client.Close()
}
