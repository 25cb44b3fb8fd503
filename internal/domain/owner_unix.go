package domain

import (
	"os"
	"syscall"
)

// isOwnedByCurrentUser reports whether fi's owning uid matches the
// current process uid, matching ssm/domain.py's is_owner
// (os.stat(path).st_uid == os.getuid()).
func isOwnedByCurrentUser(fi os.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return int(st.Uid) == os.Getuid()
}
