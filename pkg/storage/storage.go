// Package storage accesses recordings and intermediate JSON artifacts
// in the object store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/suitenumerique/meet/pkg/logging"
)

// Validation errors, raised before any network call. They never
// resolve on retry.
var (
	ErrInvalidObjectKey    = errors.New("invalid object key")
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

// Config holds object-store connection settings.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseTLS          bool
	// AllowedExtensions lists the recording file extensions accepted
	// for download, lowercase with leading dot.
	AllowedExtensions []string
}

// Service reads and writes objects in the recordings bucket.
type Service struct {
	client *minio.Client
	cfg    Config
	logger logging.Logger
}

// NewService connects to the object store. The endpoint may carry an
// http/https scheme, which is stripped; the scheme only decides TLS
// when UseTLS is not already set.
func NewService(cfg Config, logger logging.Logger) (*Service, error) {
	endpoint := cfg.Endpoint
	if strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimPrefix(endpoint, "https://")
		cfg.UseTLS = true
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimRight(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &Service{
		client: client,
		cfg:    cfg,
		logger: logger.With(logging.F("component", "storage")),
	}, nil
}

// DownloadRecording fetches a recording object to a local temporary
// file after validating its extension. The caller owns the returned
// path and removes it via the cleanup func.
func (s *Service) DownloadRecording(ctx context.Context, objectKey string) (string, func(), error) {
	if objectKey == "" {
		return "", nil, ErrInvalidObjectKey
	}
	ext := strings.ToLower(filepath.Ext(objectKey))
	if !s.extensionAllowed(ext) {
		return "", nil, fmt.Errorf("invalid file extension %q: %w", ext, ErrExtensionNotAllowed)
	}

	s.logger.Info("downloading recording", logging.F("object_key", objectKey))

	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return "", nil, fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "recording_*"+ext)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("download object %q: %w", objectKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove temporary file",
				logging.F("path", path), logging.Err(err))
		}
	}
	return path, cleanup, nil
}

// GetJSON downloads an object and decodes it into v.
func (s *Service) GetJSON(ctx context.Context, objectKey string, v any) error {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer obj.Close()

	if err := json.NewDecoder(obj).Decode(v); err != nil {
		return fmt.Errorf("decode object %q: %w", objectKey, err)
	}
	return nil
}

// PutJSON uploads v as a pretty-printed JSON object.
func (s *Service) PutJSON(ctx context.Context, objectKey string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put object %q: %w", objectKey, err)
	}
	return nil
}

func (s *Service) extensionAllowed(ext string) bool {
	for _, allowed := range s.cfg.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}
