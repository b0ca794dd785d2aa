package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateAssetPath validates that a local attachment path is safe and
// points at a regular file before it is opened for upload.
func ValidateAssetPath(path string) error {
	if path == "" {
		return fmt.Errorf("asset path cannot be empty")
	}

	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("asset path contains invalid characters")
	}

	// Clean the path to resolve any .. or . components
	cleanPath := filepath.Clean(path)

	// Check for directory traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("asset not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("asset path is a directory: %s", path)
	}

	return nil
}

// ValidateAssetPathWithBase validates an asset path against a base
// directory, rejecting paths that escape it.
func ValidateAssetPathWithBase(path, baseDir string) error {
	if err := ValidateAssetPath(filepath.Join(baseDir, path)); err != nil {
		return err
	}

	fullPath := filepath.Clean(filepath.Join(baseDir, path))
	cleanBase := filepath.Clean(baseDir)

	if !strings.HasPrefix(fullPath, cleanBase) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
