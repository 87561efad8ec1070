//go:build darwin

package selector

import (
	"os"
	"syscall"
	"time"
)

// changeTime returns the inode change time, falling back to the mtime.
func changeTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctimespec.Unix())
	}
	return info.ModTime()
}
