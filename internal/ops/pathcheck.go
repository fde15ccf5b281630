package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/handoff/internal/errors"
)

// ValidateInputPath checks a caller-supplied .jsonl path before it is read:
// no ".." components, a .jsonl extension, and an existing regular file that
// is not a symlink.
func ValidateInputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound(path)
		}
		return errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if !info.Mode().IsRegular() {
		return errors.NewInvalidRequest("path must be a regular file")
	}
	return nil
}

// ValidateAllowedInputPath is ValidateInputPath plus a directory
// restriction: the file, with symlinks in its directory resolved, must lie
// within one of allowedDirs. Relative entries in allowedDirs are ignored.
func ValidateAllowedInputPath(path string, allowedDirs []string) error {
	if err := ValidateInputPath(path); err != nil {
		return err
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	parentDir, err := filepath.EvalSymlinks(filepath.Dir(absPath))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("cannot resolve path: %v", err))
	}

	dirs := resolveAllowedDirs(allowedDirs)
	for _, dir := range dirs {
		if isWithinDir(parentDir, dir) {
			return nil
		}
	}
	return errors.NewInvalidRequest(fmt.Sprintf("file must be inside an allowed directory; allowed: %v", dirs))
}

// resolveAllowedDirs returns the absolute entries of dirs, cleaned and with
// symlinks resolved where the directory exists.
func resolveAllowedDirs(dirs []string) []string {
	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if !filepath.IsAbs(d) {
			continue
		}
		d = filepath.Clean(d)
		if resolved, err := filepath.EvalSymlinks(d); err == nil {
			d = resolved
		}
		result = append(result, d)
	}
	return result
}

// isWithinDir reports whether path is dir or lies beneath it.
func isWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// containsTraversal reports whether path has a ".." component under either
// separator.
func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
