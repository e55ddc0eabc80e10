package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/models"
)

type fakeS3 struct {
	s3iface.S3API
	puts map[string][]byte
	err  error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func TestStorageArchivesTranscript(t *testing.T) {
	client := &fakeS3{}
	storage := NewStorageServiceWithClient(client, config.AWSConfig{
		Region:           "eu-west-1",
		S3Bucket:         "archive",
		TranscriptPrefix: "transcripts/",
	})
	require.True(t, storage.Enabled())

	ticketID := uuid.MustParse("6f1c2d4e-0000-4000-8000-000000000001")
	generated := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	transcript := &Transcript{
		Ticket:      models.Ticket{BaseModel: models.BaseModel{ID: ticketID}, ProductName: "Widget"},
		Messages:    []models.TicketMessage{{Content: "hello"}},
		GeneratedAt: generated,
	}

	require.NoError(t, storage.ArchiveTranscript(context.Background(), transcript))

	key := "archive/transcripts/2026/03/09/" + ticketID.String() + ".json"
	require.Contains(t, client.puts, key)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(client.puts[key], &decoded))
	assert.Equal(t, "Widget", decoded.Ticket.ProductName)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "hello", decoded.Messages[0].Content)
}

func TestStorageUploadError(t *testing.T) {
	storage := NewStorageServiceWithClient(&fakeS3{err: errors.New("denied")}, config.AWSConfig{S3Bucket: "archive"})
	err := storage.ArchiveTranscript(context.Background(), &Transcript{})
	assert.ErrorContains(t, err, "denied")
}

func TestStorageDisabledIsNoop(t *testing.T) {
	storage, err := NewStorageService(config.AWSConfig{Region: "us-east-1"})
	require.NoError(t, err)
	assert.False(t, storage.Enabled())
	assert.NoError(t, storage.ArchiveTranscript(context.Background(), &Transcript{}))

	_, err = storage.GeneratePresignedURL("x", time.Minute)
	assert.Error(t, err)
}
