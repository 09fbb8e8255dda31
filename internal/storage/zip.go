package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ArchiveName returns the download file name for a project.
func ArchiveName(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		project = "nexa_project"
	}
	return project + ".zip"
}

// WriteZip packs files into a deflated zip archive on w and returns how many
// files were written. Backslashes become slashes and surrounding slashes are
// dropped; files with an empty path or a ".." or "~" segment are skipped.
// Every parent directory gets its own entry.
func WriteZip(w io.Writer, files []File) (int, error) {
	zw := zip.NewWriter(w)
	dirs := map[string]bool{}
	written := 0

	for _, f := range files {
		p := strings.Trim(strings.ReplaceAll(strings.TrimSpace(f.Path), `\`, "/"), "/")
		if p == "" {
			continue
		}
		parts := strings.Split(p, "/")
		if unsafeArchivePath(parts) {
			continue
		}

		dir := ""
		for _, part := range parts[:len(parts)-1] {
			dir += part + "/"
			dirs[dir] = true
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p, Method: zip.Deflate})
		if err != nil {
			return written, fmt.Errorf("add %s: %w", p, err)
		}
		if _, err := io.WriteString(fw, f.Content); err != nil {
			return written, fmt.Errorf("write %s: %w", p, err)
		}
		written++
	}

	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)
	for _, d := range names {
		if _, err := zw.Create(d); err != nil {
			return written, fmt.Errorf("add directory %s: %w", d, err)
		}
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("close archive: %w", err)
	}
	return written, nil
}

func unsafeArchivePath(parts []string) bool {
	for _, part := range parts {
		if part == ".." || part == "~" {
			return true
		}
	}
	return false
}
