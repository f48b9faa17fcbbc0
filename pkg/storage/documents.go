package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/immersup/immersup-api/pkg/config"
)

// Extension allow-lists for uploaded files.
var (
	documentExtensions = map[string]struct{}{
		".doc": {}, ".pdf": {}, ".xls": {}, ".ods": {}, ".odt": {}, ".docx": {}, ".xlsx": {},
	}
	imageExtensions = map[string]struct{}{
		".gif": {}, ".jpg": {}, ".png": {},
	}
)

// DocumentStore persists record attachments and image assets on disk.
type DocumentStore struct {
	baseDir string
	maxSize int64
}

// NewDocumentStore ensures the base directory exists.
func NewDocumentStore(cfg config.DocumentsConfig) (*DocumentStore, error) {
	baseDir := cfg.StorageDir
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	maxSize := cfg.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = 20 * 1024 * 1024
	}
	return &DocumentStore{baseDir: baseDir, maxSize: maxSize}, nil
}

// ValidateDocument rejects disallowed extensions and oversized files.
func (s *DocumentStore) ValidateDocument(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := documentExtensions[ext]; !ok {
		return fmt.Errorf("file type %q not allowed for documents", ext)
	}
	if size > s.maxSize {
		return fmt.Errorf("file exceeds maximum size of %d bytes", s.maxSize)
	}
	return nil
}

// ValidateImage rejects non-image extensions.
func (s *DocumentStore) ValidateImage(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := imageExtensions[ext]; !ok {
		return fmt.Errorf("file type %q not allowed for images", ext)
	}
	return nil
}

// Save streams the file under a year-based subdirectory, lower-cased
// with spaces replaced, and returns the stored relative path.
func (s *DocumentStore) Save(filename string, r io.Reader) (string, error) {
	rel := filepath.Join(
		time.Now().Format("2006"),
		strings.ReplaceAll(strings.ToLower(filepath.Base(filename)), " ", "_"),
	)
	path := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare document directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, io.LimitReader(r, s.maxSize+1)); err != nil {
		return "", fmt.Errorf("write document file: %w", err)
	}
	info, err := file.Stat()
	if err == nil && info.Size() > s.maxSize {
		_ = os.Remove(path)
		return "", fmt.Errorf("file exceeds maximum size of %d bytes", s.maxSize)
	}
	return rel, nil
}

// Open returns a read-only handle for a stored file.
func (s *DocumentStore) Open(rel string) (*os.File, error) {
	file, err := os.Open(filepath.Join(s.baseDir, rel))
	if err != nil {
		return nil, fmt.Errorf("open document file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *DocumentStore) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.baseDir, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document file: %w", err)
	}
	return nil
}
