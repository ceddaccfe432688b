package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "My Video", "My Video"},
		{"slashes", "a/b\\c", "a_b_c"},
		{"illegal punctuation", `what? "why": <how>`, "what_ _why__ _how_"},
		{"control chars", "a\x00b\x1fc", "a_b_c"},
		{"pipe and star", "top|10*hits", "top_10_hits"},
		{"trailing dots and spaces", "  name.. ", "name"},
		{"empty", "", "untitled"},
		{"only dots", "...", "untitled"},
		{"only illegal", "???", "___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongNameKeepsExtension(t *testing.T) {
	name := strings.Repeat("x", 300) + ".mp4"
	got := SanitizeFilename(name)

	if len(got) > MaxFilenameLength {
		t.Errorf("sanitized name length %d exceeds %d", len(got), MaxFilenameLength)
	}
	if !strings.HasSuffix(got, ".mp4") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := UniquePath(dir, "video.mp4")
	if first != filepath.Join(dir, "video.mp4") {
		t.Errorf("expected plain path, got %q", first)
	}

	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	second := UniquePath(dir, "video.mp4")
	if second != filepath.Join(dir, "video (1).mp4") {
		t.Errorf("expected (1) suffix, got %q", second)
	}

	if err := os.WriteFile(second, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	third := UniquePath(dir, "video.mp4")
	if third != filepath.Join(dir, "video (2).mp4") {
		t.Errorf("expected (2) suffix, got %q", third)
	}
}

func TestCleanupPartials(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "clip.mp4")

	leftovers := []string{
		final + ".part",
		final + ".ytdl",
		filepath.Join(dir, "clip.f137.mp4.part"),
		filepath.Join(dir, "clip.f140.m4a.part"),
	}
	for _, p := range leftovers {
		if err := os.WriteFile(p, []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// The finished file itself must survive cleanup.
	if err := os.WriteFile(final, []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed := CleanupPartials(final)
	if removed != len(leftovers) {
		t.Errorf("expected %d removed, got %d", len(leftovers), removed)
	}

	for _, p := range leftovers {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("leftover %s still exists", p)
		}
	}
	if _, err := os.Stat(final); err != nil {
		t.Errorf("final file was removed: %v", err)
	}
}

func TestCleanupPartials_NothingToRemove(t *testing.T) {
	dir := t.TempDir()
	if removed := CleanupPartials(filepath.Join(dir, "none.mp4")); removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}
