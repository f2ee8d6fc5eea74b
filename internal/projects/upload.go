package projects

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kompressai/portal/pkg/logging"
)

// FileKind is the storage folder an upload belongs to.
type FileKind string

const (
	KindModel         FileKind = "models"
	KindDataset       FileKind = "datasets"
	KindScript        FileKind = "scripts"
	KindPreprocessing FileKind = "preprocess"
	// KindAttachment holds files sent with the contact form.
	KindAttachment FileKind = "attachments"

	DefaultMaxUploadBytes int64 = 50 << 20
)

// KindMaxBytes caps kinds below the storage-wide limit.
var KindMaxBytes = map[FileKind]int64{
	KindAttachment: 10 << 20,
}

// AllowedExtensions gates uploads per kind. Extensions are lower case with the dot.
var AllowedExtensions = map[FileKind][]string{
	KindModel:         {".onnx", ".pt", ".pth"},
	KindDataset:       {".csv", ".zip"},
	KindScript:        {".py"},
	KindPreprocessing: {".py", ".zip", ".json"},
	KindAttachment:    {".pdf", ".txt", ".png", ".csv"},
}

// ValidateUpload checks name, kind and size before anything is stored.
func ValidateUpload(kind FileKind, filename string, size, maxBytes int64) error {
	allowed, ok := AllowedExtensions[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFileKind, kind)
	}
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || !slices.Contains(allowed, ext) {
		return fmt.Errorf("%w: %s accepts %s", ErrUnsupportedFile, kind, strings.Join(allowed, ", "))
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if limit, ok := KindMaxBytes[kind]; ok && limit < maxBytes {
		maxBytes = limit
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, maxBytes)
	}
	return nil
}

// ObjectKey builds "{kind}/{userID}_{unixMillis}.{ext}".
func ObjectKey(kind FileKind, userID, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	return fmt.Sprintf("%s/%s_%d.%s", kind, userID, now.UnixMilli(), ext)
}

// KeyFromURL returns the object key that follows the bucket segment of a
// public URL, or "" when the URL does not reference the bucket.
func KeyFromURL(publicURL, bucket string) string {
	u, err := url.Parse(publicURL)
	if err != nil || bucket == "" {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := slices.Index(parts, bucket)
	if idx == -1 || idx == len(parts)-1 {
		return ""
	}
	return strings.Join(parts[idx+1:], "/")
}

// S3API is the subset of the S3 client used by Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Storage uploads project files to an S3-compatible bucket.
type Storage struct {
	client     S3API
	bucket     string
	publicBase string
	maxBytes   int64
	now        func() time.Time
	logger     *logging.Logger
}

// NewStorage returns nil when the client or bucket is missing; a nil
// Storage reports ErrStorageUnavailable.
func NewStorage(client S3API, bucket, publicBase string, maxBytes int64, logger *logging.Logger) *Storage {
	if client == nil || bucket == "" {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Storage{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		maxBytes:   maxBytes,
		now:        time.Now,
		logger:     logging.OrDefault(logger).Component("projects.storage"),
	}
}

func (s *Storage) Enabled() bool {
	return s != nil && s.client != nil && s.bucket != ""
}

func (s *Storage) MaxBytes() int64 {
	if s == nil {
		return DefaultMaxUploadBytes
	}
	return s.maxBytes
}

// Upload validates and stores a file, returning its public URL.
func (s *Storage) Upload(ctx context.Context, kind FileKind, userID, filename string, body io.Reader, size int64, contentType string) (string, error) {
	if !s.Enabled() {
		return "", ErrStorageUnavailable
	}
	if err := ValidateUpload(kind, filename, size, s.maxBytes); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := ObjectKey(kind, userID, filename, s.now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("projects: s3 put %s: %w", key, err)
	}
	s.logger.Info("uploaded project file", "kind", kind, "key", key, "bytes", size)
	return s.PublicURL(key), nil
}

// PublicURL is "{publicBase}/{bucket}/{key}".
func (s *Storage) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucket, key)
}

// Delete removes an object by its public URL. Unknown URLs are ignored.
func (s *Storage) Delete(ctx context.Context, publicURL string) error {
	if !s.Enabled() {
		return ErrStorageUnavailable
	}
	key := KeyFromURL(publicURL, s.bucket)
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("projects: s3 delete %s: %w", key, err)
	}
	return nil
}
