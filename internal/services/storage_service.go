// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/config"
)

// StorageService archives ticket transcripts to S3.
type StorageService struct {
	s3Client s3iface.S3API
	config   config.AWSConfig
}

type UploadResult struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	if !cfg.ArchiveEnabled() {
		// Return service without S3 for local development
		return &StorageService{config: cfg}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

// NewStorageServiceWithClient wires an existing S3 client.
func NewStorageServiceWithClient(client s3iface.S3API, cfg config.AWSConfig) *StorageService {
	return &StorageService{s3Client: client, config: cfg}
}

func (s *StorageService) Enabled() bool {
	return s.s3Client != nil
}

// TranscriptKey is the object key of a ticket's transcript.
func (s *StorageService) TranscriptKey(ticketID uuid.UUID, closedAt time.Time) string {
	return path.Join(s.config.TranscriptPrefix, closedAt.UTC().Format("2006/01/02"), ticketID.String()+".json")
}

// ArchiveTranscript uploads the transcript as JSON. It is a no-op when S3 is
// not configured.
func (s *StorageService) ArchiveTranscript(ctx context.Context, transcript *Transcript) error {
	if s.s3Client == nil {
		return nil
	}

	body, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	key := s.TranscriptKey(transcript.Ticket.ID, transcript.GeneratedAt)
	result, err := s.upload(ctx, body, key, "application/json")
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"ticket_id": transcript.Ticket.ID,
		"key":       result.Key,
		"size":      result.Size,
	}).Info("Transcript archived to S3")
	return nil
}

func (s *StorageService) upload(ctx context.Context, body []byte, key, contentType string) (*UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:  s.getS3URL(key),
		Key:  key,
		Size: int64(len(body)),
	}, nil
}

// GeneratePresignedURL returns a temporary download link for an archived
// transcript.
func (s *StorageService) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", errors.New("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

func (s *StorageService) getS3URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.S3Bucket, s.config.Region, key)
}
