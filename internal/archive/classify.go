package archive

import (
	"errors"
	"io/fs"
	"os"
)

// isFSError reports whether err came from a filesystem call on the local side
// of the pipeline (open, stat, mkdir, link, chmod, ...)
func isFSError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr)
}
