package utils

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// HashDirsFast fingerprints directory trees from path, size and mtime only.
// It is used to skip watcher events that did not change anything.
func HashDirsFast(fs afero.Fs, dirs []string) (string, error) {
	h := blake3.New()
	for _, dir := range dirs {
		err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(h, "%s:%d:%d;", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano()); err != nil {
				return fmt.Errorf("failed to write to hash: %w", err)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
