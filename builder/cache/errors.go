package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// SaveErrorKind classifies manifest save failures so the CLI can suggest a fix.
type SaveErrorKind int

const (
	SaveErrOther SaveErrorKind = iota
	SaveErrPermission
	SaveErrDiskFull
	SaveErrTooManyFiles
	SaveErrNotDirectory
)

func (k SaveErrorKind) String() string {
	switch k {
	case SaveErrPermission:
		return "permission denied"
	case SaveErrDiskFull:
		return "disk full"
	case SaveErrTooManyFiles:
		return "too many open files"
	case SaveErrNotDirectory:
		return "not a directory"
	}
	return "other"
}

// SaveError is returned when the manifest cannot be written. The build's
// output is complete but the cache is not durably recorded.
type SaveError struct {
	Kind SaveErrorKind
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	switch e.Kind {
	case SaveErrPermission:
		return fmt.Sprintf("failed to save cache manifest %s: permission denied; check ownership of the cache directory or set cacheDir to a writable location", e.Path)
	case SaveErrDiskFull:
		return fmt.Sprintf("failed to save cache manifest %s: no space left on device; free disk space and rebuild", e.Path)
	case SaveErrTooManyFiles:
		return fmt.Sprintf("failed to save cache manifest %s: too many open files; raise the open file limit (ulimit -n) or lower workers", e.Path)
	case SaveErrNotDirectory:
		return fmt.Sprintf("failed to save cache manifest %s: cache path is not a directory; remove the file in its place or change cacheDir", e.Path)
	}
	return fmt.Sprintf("failed to save cache manifest %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

func classifySaveError(path string, err error) *SaveError {
	kind := SaveErrOther
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = SaveErrPermission
	case errors.Is(err, syscall.ENOSPC):
		kind = SaveErrDiskFull
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		kind = SaveErrTooManyFiles
	case errors.Is(err, syscall.ENOTDIR):
		kind = SaveErrNotDirectory
	}
	return &SaveError{Kind: kind, Path: path, Err: err}
}
