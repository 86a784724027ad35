package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
)

// ErrFileTooLarge is returned when an upload exceeds the configured size
var ErrFileTooLarge = errors.New("receipt file too large")

// LocalReceiptStorage implements port.ReceiptStorage on the local filesystem.
// Files are served under urlPrefix by the HTTP layer.
type LocalReceiptStorage struct {
	folders     *FolderManager
	baseDir     string
	urlPrefix   string
	maxFileSize int64
	logger      *zap.Logger
}

// NewLocalReceiptStorage creates a new LocalReceiptStorage
func NewLocalReceiptStorage(baseDir, urlPrefix string, maxFileSize int64, logger *zap.Logger) *LocalReceiptStorage {
	return &LocalReceiptStorage{
		folders:     NewFolderManager(baseDir, logger),
		baseDir:     baseDir,
		urlPrefix:   strings.TrimRight(urlPrefix, "/"),
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Stage writes every file under the imprest's folder and returns their URLs in order.
// On failure the files already written are removed.
func (s *LocalReceiptStorage) Stage(ctx context.Context, imprestID string, files []port.UploadedFile) ([]string, error) {
	folder, err := s.folders.CreateFolder(ctx, imprestID)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			_ = s.Discard(ctx, urls)
			return nil, err
		}

		name := uuid.NewString() + "-" + SanitizeName(f.Name)
		fullPath := filepath.Join(folder, name)
		if err := s.write(fullPath, f.Content); err != nil {
			_ = s.Discard(ctx, urls)
			return nil, fmt.Errorf("stage %s: %w", f.Name, err)
		}
		urls = append(urls, s.urlPrefix+"/"+path.Join(filepath.Base(folder), name))
	}

	s.logger.Debug("Receipts staged",
		zap.String("imprest_id", imprestID),
		zap.Int("count", len(urls)))

	return urls, nil
}

func (s *LocalReceiptStorage) write(fullPath string, content io.Reader) (err error) {
	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	out, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Error("Failed to create file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(fullPath)
		}
	}()

	src := content
	if s.maxFileSize > 0 {
		src = io.LimitReader(content, s.maxFileSize+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if s.maxFileSize > 0 && n > s.maxFileSize {
		return &imprest.ValidationError{
			Field:  "receipt_files",
			Reason: fmt.Sprintf("file exceeds %d bytes", s.maxFileSize),
			Err:    ErrFileTooLarge,
		}
	}
	return nil
}

// Discard removes staged files; unknown or already removed files are ignored
func (s *LocalReceiptStorage) Discard(ctx context.Context, urls []string) error {
	var errs []error
	for _, url := range urls {
		fullPath, err := s.pathOf(url)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to delete file", zap.String("path", fullPath), zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to delete file: %w", err))
			continue
		}
		s.folders.RemoveIfEmpty(filepath.Base(filepath.Dir(fullPath)))
	}
	return errors.Join(errs...)
}

// Open returns a staged file for serving
func (s *LocalReceiptStorage) Open(url string) (*os.File, error) {
	fullPath, err := s.pathOf(url)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// URLPrefix is the path under which staged files are served
func (s *LocalReceiptStorage) URLPrefix() string {
	return s.urlPrefix
}

func (s *LocalReceiptStorage) pathOf(url string) (string, error) {
	rel, ok := strings.CutPrefix(url, s.urlPrefix+"/")
	if !ok {
		return "", fmt.Errorf("url %s is not served by this storage", url)
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}
	return fullPath, nil
}

// validatePath checks that the path is safe and within baseDir
func (s *LocalReceiptStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}

	return nil
}

var _ port.ReceiptStorage = (*LocalReceiptStorage)(nil)
