// Package paths handles download destination hygiene: sanitizing titles
// into portable filenames, avoiding collisions, and cleaning up the partial
// files the fetch engine leaves behind.
package paths

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// Characters that are invalid in filenames on at least one supported OS.
var illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// MaxFilenameLength bounds sanitized names; longer titles are truncated with
// the extension preserved.
const MaxFilenameLength = 200

// Extensions of intermediate files the fetch engine writes next to the
// destination while a download is in flight.
var partialExtensions = []string{".part", ".ytdl"}

// SanitizeFilename replaces illegal characters with underscores, trims
// leading/trailing spaces and dots, and bounds the length.
func SanitizeFilename(name string) string {
	sanitized := illegalChars.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, " .")

	if len(sanitized) > MaxFilenameLength {
		ext := filepath.Ext(sanitized)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		stem := sanitized[:MaxFilenameLength-len(ext)]
		stem = strings.TrimRight(stem, " .")
		sanitized = stem + ext
	}

	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}

// UniquePath returns dir/filename, adding a " (N)" suffix before the
// extension until the path does not exist on disk.
func UniquePath(dir, filename string) string {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// CleanupPartials removes partial files associated with finalPath: the
// direct .part/.ytdl companions plus the per-format intermediates
// ("name.f137.mp4.part" and similar). Returns how many files were removed.
func CleanupPartials(finalPath string) int {
	removed := 0
	for _, ext := range partialExtensions {
		if err := os.Remove(finalPath + ext); err == nil {
			removed++
		}
	}

	dir := filepath.Dir(finalPath)
	base := filepath.Base(finalPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return removed
	}

	for _, ext := range partialExtensions {
		matches, err := filepath.Glob(filepath.Join(dir, stem+"*"+ext))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err == nil {
				removed++
			}
		}
	}
	return removed
}

// OpenFolder reveals a directory in the platform file manager.
func OpenFolder(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
