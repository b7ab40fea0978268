package server

import (
	"path/filepath"
	"strings"
	"testing"
)

func FuzzIsSafeAbsPath(f *testing.F) {
	for _, s := range []string{
		"/safe/absolute/path", "", "/", "relative/path", "/path/../traversal",
		"/path/./current", "/path//double/slash", `C:\Windows\Path`, "/path\x00null",
	} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, path string) {
		if len(path) > 500 {
			t.Skip("path too long")
		}
		ok := isSafeAbsPath(path)
		if path == "" && !ok {
			t.Fatal("empty work dir must be accepted")
		}
		if path != "" && !filepath.IsAbs(path) && ok {
			t.Fatalf("relative path accepted: %q", path)
		}
		if ok && path != "" {
			clean := filepath.Clean(path)
			trimmed := strings.TrimRight(path, string(filepath.Separator))
			if trimmed == "" {
				trimmed = path
			}
			if clean != path && clean != trimmed {
				t.Fatalf("uncleaned path accepted: %q -> %q", path, clean)
			}
		}
	})
}

func FuzzSanitizeBase(f *testing.F) {
	for _, s := range []string{"", "/", "/api", "/api/", "api", "  /api/v1/  ", "//multiple//slashes//"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, base string) {
		if len(base) > 200 {
			t.Skip("base path too long")
		}
		got := sanitizeBase(base)
		if got != "" && !strings.HasPrefix(got, "/") {
			t.Fatalf("sanitized base must start with /: %q -> %q", base, got)
		}
		if strings.HasSuffix(got, "/") {
			t.Fatalf("sanitized base must not end with /: %q -> %q", base, got)
		}
		if tr := strings.TrimSpace(base); (tr == "" || tr == "/") && got != "" {
			t.Fatalf("root base must sanitize to empty: %q -> %q", base, got)
		}
		if sanitizeBase(got) != got {
			t.Fatalf("sanitizeBase not idempotent for %q", base)
		}
	})
}
