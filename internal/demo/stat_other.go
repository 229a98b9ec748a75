//go:build !linux

package demo

import (
	"io/fs"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func owner(fs.FileInfo) (uid, gid uint32, ok bool) {
	return 0, 0, false
}

func statOf(fi fs.FileInfo) facility.FileStat {
	return basicStat(fi)
}
