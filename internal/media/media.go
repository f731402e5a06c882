// Package media validates uploaded product images and keeps them in object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported image type")
	ErrTooLarge         = errors.New("image is too large")
	ErrEmpty            = errors.New("image is empty")
	ErrObjectNotFound   = errors.New("object not found")
)

// URLPrefix is the path under which stored objects are served
const URLPrefix = "/uploads/"

var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Config defines object storage parameters parsed from environment variables.
// Empty Endpoint selects in-memory storage.
type Config struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"product-images"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MaxBytes  int64  `env:"UPLOAD_MAX_BYTES" envDefault:"5242880"`
}

// Image is a validated upload ready to be stored
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Read consumes r up to maxBytes and sniffs its content type
func Read(r io.Reader, maxBytes int64) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	if int64(len(data)) > maxBytes {
		return Image{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	ext, ok := allowed[mt.String()]
	if !ok {
		return Image{}, ErrUnsupportedMedia
	}

	return Image{Data: data, ContentType: mt.String(), Ext: ext}, nil
}

// NewKey returns a unique object key for an image stored under prefix
func NewKey(prefix string, img Image) string {
	return strings.Trim(prefix, "/") + "/" + xid.New().String() + img.Ext
}

// URL returns public path of object key
func URL(key string) string {
	return URLPrefix + key
}

// Object is a stored object opened for reading
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// MemoryStore keeps objects in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Image
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Image)}
}

func (s *MemoryStore) Put(_ context.Context, key string, img Image) error {
	s.mu.Lock()
	s.objects[key] = img
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (Object, error) {
	s.mu.RLock()
	img, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	return Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(img.Data)),
		ContentType: img.ContentType,
		Size:        int64(len(img.Data)),
	}, nil
}
