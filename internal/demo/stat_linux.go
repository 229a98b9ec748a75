//go:build linux

package demo

import (
	"io/fs"
	"syscall"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func owner(fi fs.FileInfo) (uid, gid uint32, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return st.Uid, st.Gid, true
}

func statOf(fi fs.FileInfo) facility.FileStat {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return basicStat(fi)
	}
	return facility.FileStat{
		Mode:  st.Mode,
		Ino:   st.Ino,
		Dev:   uint64(st.Dev),
		Nlink: uint64(st.Nlink),
		UID:   st.Uid,
		GID:   st.Gid,
		Size:  int64(st.Size),
		Atime: int64(st.Atim.Sec),
		Ctime: int64(st.Ctim.Sec),
		Mtime: int64(st.Mtim.Sec),
	}
}
