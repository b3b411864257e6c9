package utils

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// NormalizePath converts separators to forward slashes and, on Windows,
// upper-cases the drive letter so equal paths compare equal.
func NormalizePath(path string) string {
	if !strings.Contains(path, "\\") {
		return path
	}

	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '\\' {
			b.WriteByte('/')
		} else {
			b.WriteByte(c)
		}
	}

	result := b.String()

	if runtime.GOOS == "windows" && len(result) >= 2 && result[1] == ':' {
		return strings.ToUpper(result[:1]) + result[1:]
	}

	return result
}

// SafeRel returns target relative to base, slash separated, and fails if
// the result would escape base.
func SafeRel(base, target string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", target, base)
	}
	return filepath.ToSlash(rel), nil
}

// WithinRoot reports whether path is root or lies beneath it.
func WithinRoot(root, path string) bool {
	_, err := SafeRel(root, path)
	return err == nil
}

func WriteFileVFS(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write VFS file %s: %w", path, err)
	}
	return nil
}
