//go:build windows

package store

import "os"

// openNoFollow opens path. Windows has no O_NOFOLLOW; creating symlinks
// there needs elevated privileges, and Lstat checks before rename still apply.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
