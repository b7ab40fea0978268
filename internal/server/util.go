package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	mng "github.com/fiercefairy/PortOS-sub006/internal/manager"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeAbsPath ensures the provided path is absolute and does not contain traversal.
// It must be already cleaned (no ".." segments).
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(p, sep)
	if trimmed == "" {
		trimmed = p // keep root like "/" on Unix
	}
	// Reject if cleaning changes more than just trailing separators
	if !(clean == p || clean == trimmed) {
		return false
	}
	return true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

type errorResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in errorResp.Code.
const (
	CodeInvalidCommand = "INVALID_COMMAND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeDuplicateJob   = "DUPLICATE_JOB"
	CodeNotFound       = "NOT_FOUND"
	CodeSpawnError     = "SPAWN_ERROR"
	CodeShuttingDown   = "SHUTTING_DOWN"
	CodeInternal       = "INTERNAL"
)

// statusFor maps manager errors onto HTTP status codes and wire codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, mng.ErrInvalidCommand):
		return http.StatusBadRequest, CodeInvalidCommand
	case errors.Is(err, mng.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, mng.ErrDuplicateJob):
		return http.StatusConflict, CodeDuplicateJob
	case errors.Is(err, mng.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, mng.ErrSpawn):
		return http.StatusInternalServerError, CodeSpawnError
	case errors.Is(err, mng.ErrShuttingDown):
		return http.StatusServiceUnavailable, CodeShuttingDown
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	writeJSON(c, status, errorResp{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResp{Error: msg, Code: CodeInvalidRequest})
}
