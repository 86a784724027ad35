package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// FolderManager owns the per-imprest receipt folders under one base directory
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// CreateFolder creates the folder for name and returns its full path
func (m *FolderManager) CreateFolder(ctx context.Context, name string) (string, error) {
	safeName := SanitizeName(name)
	if safeName == "" {
		return "", fmt.Errorf("cannot create folder: empty name")
	}

	folderPath := filepath.Join(m.baseDir, safeName)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create folder",
			zap.String("name", name),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	m.logger.Debug("Created folder",
		zap.String("name", name),
		zap.String("folder_path", folderPath))

	return folderPath, nil
}

// GetPath returns the path for a folder without creating it
func (m *FolderManager) GetPath(name string) string {
	return filepath.Join(m.baseDir, SanitizeName(name))
}

// RemoveIfEmpty deletes a folder that no longer holds any file
func (m *FolderManager) RemoveIfEmpty(name string) {
	folderPath := m.GetPath(name)
	entries, err := os.ReadDir(folderPath)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(folderPath); err != nil {
		m.logger.Debug("Failed to remove empty folder",
			zap.String("folder_path", folderPath),
			zap.Error(err))
	}
}

// SanitizeName returns a filesystem-safe version of the name.
// Path separators and parent references are removed before filtering.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = unsafeNameChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, ".")
}
