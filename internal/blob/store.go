// Package blob stores generated documents and checklist attachments in an
// S3-compatible object store. Containers map one to one onto buckets.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	ContainerMS          = "generated-ms"
	ContainerRA          = "generated-ra"
	ContainerAttachments = "checklist-attachments"
)

var ErrInvalidURL = errors.New("invalid blob url")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type Store struct {
	client  *minio.Client
	baseURL *url.URL
	region  string

	mu      sync.Mutex
	buckets map[string]bool
}

// Object is an open blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Name        string
}

func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &Store{
		client:  client,
		baseURL: client.EndpointURL(),
		region:  cfg.Region,
		buckets: map[string]bool{},
	}, nil
}

// ObjectURL is the stable reference stored in the files table.
func (s *Store) ObjectURL(container, name string) string {
	return ObjectURL(s.baseURL, container, name)
}

func ObjectURL(base *url.URL, container, name string) string {
	u := *base
	u.Path = "/" + path.Join(container, name)
	u.RawQuery = ""
	return u.String()
}

// ParseBlobURL splits a stored blob URL back into container and object name.
func ParseBlobURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	trimmed := strings.TrimPrefix(u.Path, "/")
	container, name, ok := strings.Cut(trimmed, "/")
	if !ok || container == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return container, name, nil
}

func (s *Store) ensureBucket(ctx context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[container] {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", container, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", container, err)
		}
	}
	s.buckets[container] = true
	return nil
}

// Upload stores the object and returns its URL.
func (s *Store) Upload(ctx context.Context, container, name string, body io.Reader, size int64, contentType string) (string, error) {
	if err := s.ensureBucket(ctx, container); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.client.PutObject(ctx, container, name, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", container, name, err)
	}
	return s.ObjectURL(container, name), nil
}

// Open streams the object referenced by a stored blob URL.
func (s *Store) Open(ctx context.Context, blobURL string) (Object, error) {
	container, name, err := ParseBlobURL(blobURL)
	if err != nil {
		return Object{}, err
	}
	obj, err := s.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("get %s/%s: %w", container, name, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return Object{}, fmt.Errorf("stat %s/%s: %w", container, name, err)
	}
	return Object{
		Body:        obj,
		ContentType: info.ContentType,
		Size:        info.Size,
		Name:        path.Base(name),
	}, nil
}

// PresignedURL returns a temporary GET URL for the object.
func (s *Store) PresignedURL(ctx context.Context, container, name string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, container, name, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", container, name, err)
	}
	return u.String(), nil
}
