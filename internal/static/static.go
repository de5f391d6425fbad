// Package static embeds static files into the binary and copies them to the
// data directory
package static

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/ayoisaiah/tally/internal/osutil"
)

const (
	filesDir = "files"

	// IconFile is the notification icon, relative to the data directory.
	IconFile = "static/icon.svg"
)

//go:embed files/*
var embeddedFiles embed.FS

// Install copies the embedded files to <data dir>/<dir>/static. Files that
// already exist are left alone so that users can replace them.
func Install(dir string) error {
	return fs.WalkDir(
		embeddedFiles,
		filesDir,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				return nil
			}

			b, err := embeddedFiles.ReadFile(p)
			if err != nil {
				return err
			}

			// embed paths always use forward slashes
			stripped := strings.TrimPrefix(p, filesDir+"/")

			relPath := filepath.Join(dir, filepath.FromSlash(path.Join("static", stripped)))

			destPath, err := xdg.DataFile(relPath)
			if err != nil {
				return err
			}

			if _, err := os.Stat(destPath); os.IsNotExist(err) {
				return os.WriteFile(destPath, b, osutil.FilePermission)
			}

			return nil
		},
	)
}
