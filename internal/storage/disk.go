package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage reports the on-disk size of the database and index paths.
type DiskUsage struct {
	TotalBytes int64            `json:"total_bytes"`
	ByPath     map[string]int64 `json:"by_path"`
}

// MeasureDiskUsage sums the size of each path; directories are walked recursively.
// Missing paths count as zero. SQLite side files (-wal, -shm) are included.
func MeasureDiskUsage(paths ...string) (*DiskUsage, error) {
	usage := &DiskUsage{ByPath: make(map[string]int64, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		var n int64
		for _, candidate := range []string{p, p + "-wal", p + "-shm"} {
			size, err := pathSize(candidate)
			if err != nil {
				return nil, err
			}
			n += size
		}
		usage.ByPath[p] = n
		usage.TotalBytes += n
	}
	return usage, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
