// Package s3store uploads generated food images to S3.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/nutriplan/nutriplan/internal/imagery"
)

// ThumbnailPrefix is prepended to an object key to address its thumbnail.
const ThumbnailPrefix = "thumbnails/"

// Config holds S3 store configuration.
type Config struct {
	Bucket string
	Region string

	// Endpoint overrides the S3 endpoint (S3-compatible storage).
	Endpoint string

	// PublicBaseURL is the URL objects are served from, usually a CDN.
	// Defaults to the bucket's virtual-hosted URL.
	PublicBaseURL string
}

// Store uploads images with the s3manager uploader.
type Store struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	baseURL  string
}

// New creates a store backed by a new AWS session.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return NewWithUploader(s3manager.NewUploader(sess), cfg), nil
}

// NewWithUploader creates a store around an existing uploader.
func NewWithUploader(uploader s3manageriface.UploaderAPI, cfg Config) *Store {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &Store{uploader: uploader, bucket: cfg.Bucket, baseURL: base}
}

// Put uploads data under key and returns its public and thumbnail URLs.
// Thumbnails are produced out of band under ThumbnailPrefix+key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (imagery.Image, error) {
	key = strings.TrimLeft(key, "/")
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return imagery.Image{}, fmt.Errorf("uploading %s: %w", key, err)
	}
	return imagery.Image{
		URL:          s.baseURL + "/" + key,
		ThumbnailURL: s.baseURL + "/" + ThumbnailPrefix + key,
	}, nil
}

var _ imagery.Store = (*Store)(nil)
