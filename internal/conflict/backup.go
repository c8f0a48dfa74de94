package conflict

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/afero"
)

// BackupTimeFormat is the ISO-8601 basic UTC stamp inserted in backup names.
const BackupTimeFormat = "20060102T150405Z"

// FilePerms are the permissions for backup files (rw-------)
const FilePerms os.FileMode = 0600

// Backup copies path to "<path>.<stamp>.bak" and returns the backup path.
// When that name is taken a counter is inserted before ".bak".
func (r *Resolver) Backup(path string) (string, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", fmt.Errorf("reading %s for backup: %w", path, err)
	}

	mode := FilePerms
	if info, err := r.fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	base := path + "." + r.now().UTC().Format(BackupTimeFormat)
	dst := base + ".bak"
	for n := 1; r.Exists(dst); n++ {
		dst = base + "." + strconv.Itoa(n) + ".bak"
	}

	if err := afero.WriteFile(r.fs, dst, data, mode); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", dst, err)
	}

	r.logger.Info("backed up existing file",
		slog.String("path", path),
		slog.String("backup", dst))

	return dst, nil
}
