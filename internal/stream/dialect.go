package stream

import (
	"path/filepath"
	"strings"
)

// Dialect names how a child's stdout should be read.
type Dialect string

const (
	// Raw output is accumulated and broadcast verbatim.
	Raw Dialect = "raw"
	// ClaudeStreamJSON is newline-delimited JSON from `claude --output-format stream-json`.
	ClaudeStreamJSON Dialect = "claude-stream-json"
)

// ParseDialect maps a user supplied name to a Dialect. Empty means unset.
func ParseDialect(s string) (Dialect, bool) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", true
	case Raw:
		return Raw, true
	case ClaudeStreamJSON, "stream-json":
		return ClaudeStreamJSON, true
	}
	return "", false
}

// Detect picks the dialect for a command line when none was requested.
func Detect(command string, args []string) Dialect {
	if filepath.Base(command) != "claude" {
		return Raw
	}
	for i, a := range args {
		if a == "--output-format=stream-json" {
			return ClaudeStreamJSON
		}
		if a == "--output-format" && i+1 < len(args) && args[i+1] == "stream-json" {
			return ClaudeStreamJSON
		}
	}
	return Raw
}

// Resolve returns explicit when set, otherwise the detected dialect.
func Resolve(explicit Dialect, command string, args []string) Dialect {
	if explicit != "" {
		return explicit
	}
	return Detect(command, args)
}

// NewFor returns an interpreter for d, or nil when output is raw.
func NewFor(d Dialect) *Interpreter {
	if d == ClaudeStreamJSON {
		return New()
	}
	return nil
}
