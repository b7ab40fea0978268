package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"

	mng "github.com/fiercefairy/PortOS-sub006/internal/manager"
)

// platformAbsPath returns a clean absolute path valid on the host OS.
func platformAbsPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(`C:\`, "tmp", "x")
	}
	return filepath.Join(string(filepath.Separator), "tmp", "x")
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	// empty is allowed
	if !isSafeAbsPath("") {
		t.Fatalf("empty should be allowed")
	}
	abs := platformAbsPath()
	if !isSafeAbsPath(abs) {
		t.Fatalf("abs clean path should be allowed: %s", abs)
	}
	// not absolute
	if isSafeAbsPath("tmp/x") {
		t.Fatalf("relative path should be rejected")
	}
	// with traversal (construct without cleaning)
	sep := string(filepath.Separator)
	bad := sep + "tmp" + sep + ".." + sep + "etc"
	if isSafeAbsPath(bad) {
		t.Fatalf("path with traversal should be rejected: %s", bad)
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
		wire string
	}{
		{fmt.Errorf("%w: rm", mng.ErrInvalidCommand), http.StatusBadRequest, CodeInvalidCommand},
		{mng.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
		{mng.ErrDuplicateJob, http.StatusConflict, CodeDuplicateJob},
		{fmt.Errorf("%w: x", mng.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{mng.ErrSpawn, http.StatusInternalServerError, CodeSpawnError},
		{mng.ErrShuttingDown, http.StatusServiceUnavailable, CodeShuttingDown},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, c := range cases {
		code, wire := statusFor(c.err)
		if code != c.code || wire != c.wire {
			t.Fatalf("statusFor(%v) = %d %s, want %d %s", c.err, code, wire, c.code, c.wire)
		}
	}
}
