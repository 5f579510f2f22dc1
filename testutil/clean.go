package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// CleanDir empties dir, other than the entries named in keeps. A missing dir is not an error.
func CleanDir(dir string, keeps []string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	for _, ent := range entries {
		if contains(keeps, ent.Name()) {
			continue
		}
		err = os.RemoveAll(filepath.Join(dir, ent.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
