package scopelog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ResolveSinkPath turns a configured sink path into the file to write. A
// path naming an existing directory gets a new dated file inside it:
// <dir>/<YYYYMMDD>/<YYYYMMDD>_run<NNNN>.csv, with the first unused run number.
// Any other path is returned unchanged after creating its parent directory.
func ResolveSinkPath(path string) (string, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("%w: sink path is the empty string", ErrInvalidConfiguration)
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return nextRunFile(path, time.Now())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return path, nil
}

func nextRunFile(basepath string, now time.Time) (string, error) {
	today := now.Format("20060102")
	todayDir := filepath.Join(basepath, today)
	if err := os.MkdirAll(todayDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	for i := 0; i < 10000; i++ {
		name := filepath.Join(todayDir, fmt.Sprintf("%s_run%4.4d.csv", today, i))
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name, nil
		}
	}
	return "", fmt.Errorf("out of 4-digit run numbers for today in %s", todayDir)
}
