//go:build !windows

package store

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/handoff/internal/errors"
)

// openNoFollow opens path with O_NOFOLLOW so a symlink planted at the final
// component is refused. O_CLOEXEC keeps the fd out of child processes.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("refusing to open symlink")
		}
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}
