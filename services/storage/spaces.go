// Package storage archives issued QR images in DigitalOcean Spaces.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sahilchouksey/tuition-api/config"
)

// ErrNotConfigured is returned when Spaces credentials or bucket are missing
var ErrNotConfigured = errors.New("spaces is not configured")

// SpacesClient handles DigitalOcean Spaces operations
type SpacesClient struct {
	s3Client  *s3.S3
	bucket    string
	endpoint  string
	pathStyle bool
	cdnURL    string
	now       func() time.Time
}

// SpacesConfig holds configuration for Spaces client
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	CDNURL    string
	// PathStyle addresses the bucket in the path, for S3 compatible test servers
	PathStyle bool
}

// SpacesConfigFromEnv builds a config from the environment; ok is false when
// archiving is not set up.
func SpacesConfigFromEnv(env *config.EnviornmentVariable) (SpacesConfig, bool) {
	cfg := SpacesConfig{
		AccessKey: env.DO_SPACES_KEY,
		SecretKey: env.DO_SPACES_SECRET,
		Bucket:    env.DO_SPACES_BUCKET,
		Region:    env.DO_SPACES_REGION,
		Endpoint:  env.DO_SPACES_ENDPOINT,
	}
	if cfg.Endpoint == "" && cfg.Region != "" {
		cfg.Endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", cfg.Region)
	}
	return cfg, cfg.AccessKey != "" && cfg.SecretKey != "" && cfg.Bucket != ""
}

// NewSpacesClient creates a new Spaces client
func NewSpacesClient(cfg SpacesConfig) (*SpacesClient, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return &SpacesClient{
		s3Client:  s3.New(sess),
		bucket:    cfg.Bucket,
		endpoint:  strings.TrimRight(endpoint, "/"),
		pathStyle: cfg.PathStyle,
		cdnURL:    strings.TrimRight(cfg.CDNURL, "/"),
		now:       time.Now,
	}, nil
}

// UploadBytes uploads data as a public object and returns its URL
func (s *SpacesClient) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        aws.ReadSeekCloser(bytes.NewReader(data)),
		ACL:         aws.String("public-read"),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.GetFileURL(key), nil
}

// GetFileURL returns the public URL for a key
func (s *SpacesClient) GetFileURL(key string) string {
	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", s.cdnURL, key)
	}
	if s.pathStyle {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	scheme, host, _ := strings.Cut(s.endpoint, "://")
	return fmt.Sprintf("%s://%s.%s/%s", scheme, s.bucket, host, key)
}

// QRKey is the object key of an archived QR image
func QRKey(reference string, at time.Time) string {
	return fmt.Sprintf("qr/%s/%s.png", at.UTC().Format("2006/01"), reference)
}

// ArchiveQR decodes a gateway QR image and stores it under its payment reference
func (s *SpacesClient) ArchiveQR(ctx context.Context, reference, qrBase64 string) (string, error) {
	data, err := decodeImage(qrBase64)
	if err != nil {
		return "", err
	}
	return s.UploadBytes(ctx, QRKey(reference, s.now()), data, "image/png")
}

// decodeImage accepts raw base64 or a data URI
func decodeImage(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i > 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid QR image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("invalid QR image: empty")
	}
	return data, nil
}
