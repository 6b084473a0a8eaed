package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ComponentUsage is the on-disk footprint of one storage component.
type ComponentUsage struct {
	Component string `json:"component"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
}

// SQLiteFiles returns the database file together with its WAL companions.
func SQLiteFiles(dbPath string) []string {
	if dbPath == "" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

// MeasureComponents returns per-component usage sorted by component name, and the total.
// components maps a component name to the paths that make it up.
func MeasureComponents(components map[string][]string) ([]ComponentUsage, int64, error) {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int64
	usage := make([]ComponentUsage, 0, len(names))
	for _, name := range names {
		paths := components[name]
		n, err := DiskUsageBytes(paths...)
		if err != nil {
			return nil, 0, err
		}
		u := ComponentUsage{Component: name, Bytes: n}
		if len(paths) > 0 {
			u.Path = paths[0]
		}
		usage = append(usage, u)
		total += n
	}
	return usage, total, nil
}

// DiskUsageBytes sums the sizes of the given files and directory trees.
// Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		n, err := pathSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, nil
	case err != nil:
		return 0, err
	case !info.IsDir():
		return info.Size(), nil
	}

	var size int64
	walkErr := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		size += fi.Size()
		return nil
	})
	return size, walkErr
}
