package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// HashPrefix identifies the digest algorithm in every stored hash.
const HashPrefix = "sha256-"

// MissingPrefix marks a dependency that could not be hashed. It never
// equals a real digest, so a dependency going absent changes the inputs hash.
const MissingPrefix = "missing:"

// HashContent digests a page body together with its front matter. Front
// matter keys are sorted at every level so insertion order never matters.
func HashContent(content string, frontMatter map[string]interface{}) (string, error) {
	buf := SharedBufferPool.Get()
	defer SharedBufferPool.Put(buf)

	canonical, err := json.Marshal(canonicalize(frontMatter))
	if err != nil {
		return "", fmt.Errorf("failed to serialize front matter: %w", err)
	}
	buf.Write(canonical)
	buf.WriteByte(0) // Delimiter
	buf.WriteString(content)

	return HashBytes(buf.Bytes()), nil
}

// HashBytes returns the prefixed SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// CombineInputsHash folds a content digest and dependency digests into one
// digest. Dependency digests are sorted first so discovery order is irrelevant.
func CombineInputsHash(contentDigest string, depDigests []string) string {
	sorted := make([]string, len(depDigests))
	copy(sorted, depDigests)
	sort.Strings(sorted)

	h := sha256.New()
	writeString(h, contentDigest)
	h.Write([]byte{0})
	for _, d := range sorted {
		writeString(h, d)
		h.Write([]byte{0})
	}
	return HashPrefix + hex.EncodeToString(h.Sum(nil))
}

// writeString writes a string to the hash
func writeString(h hash.Hash, s string) {
	_, _ = io.WriteString(h, s)
}

// canonicalize rewrites decoded YAML into values encoding/json can marshal
// deterministically: map[interface{}]interface{} becomes map[string]interface{}
// (json sorts those keys) and times become RFC 3339 strings.
func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = canonicalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprintf("%v", t)
		}
		return t
	case float32:
		return canonicalize(float64(t))
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FileHasher digests dependency files through an afero filesystem.
type FileHasher struct {
	fs     afero.Fs
	logger *slog.Logger
}

func NewFileHasher(fs afero.Fs, logger *slog.Logger) *FileHasher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHasher{fs: fs, logger: logger}
}

// HashFile returns the digest of the file at path. A file that does not
// exist yields ok == false and no error.
func (h *FileHasher) HashFile(path string) (digest string, ok bool, err error) {
	f, err := h.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return HashPrefix + hex.EncodeToString(sum.Sum(nil)), true, nil
}

// DependencyDigest returns the digest used for path inside an inputs hash.
// Missing and unreadable files both map to a missing marker; read failures
// are logged rather than returned.
func (h *FileHasher) DependencyDigest(path string) string {
	digest, ok, err := h.HashFile(path)
	if err != nil {
		h.logger.Warn("failed to hash dependency, treating as missing", "path", path, "error", err)
		return MissingDigest(path)
	}
	if !ok {
		return MissingDigest(path)
	}
	return digest
}

// MissingDigest is the placeholder digest of an absent dependency.
func MissingDigest(path string) string {
	return MissingPrefix + NormalizePath(path)
}
