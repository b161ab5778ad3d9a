package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	Prefix       string
}

// Archiver parks generated images that could not be delivered because the
// debit failed after the provider call succeeded. An operator resolves each
// incident by hand; the archived object is what they deliver or discard.
type Archiver struct {
	cfg    Config
	client *s3.Client
}

func NewArchiver(cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive credentials are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "undelivered"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &Archiver{
		cfg:    cfg,
		client: s3.New(options),
	}, nil
}

// Archive stores the image under the incident id and returns the object key.
func (a *Archiver) Archive(ctx context.Context, incidentID string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to archive")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := a.objectKey(incidentID, contentType)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put archive object: %w", err)
	}
	return key, nil
}

func (a *Archiver) objectKey(incidentID, contentType string) string {
	ext := ".png"
	if idx := strings.LastIndex(contentType, "/"); idx >= 0 && idx < len(contentType)-1 {
		ext = "." + contentType[idx+1:]
	}
	day := time.Now().UTC().Format("2006-01-02")
	return path.Join(a.cfg.Prefix, day, incidentID+ext)
}
