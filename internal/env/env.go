// Package env composes the environment handed to child processes.
package env

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type Var map[string]string

// Env holds the daemon-wide variables layered under every job's own env.
type Env struct {
	mu     sync.RWMutex
	Var    Var                 // global variables (K->V)
	env    Var                 // cached base from OS environment
	strip  map[string]struct{} // removed from the composed result
	useOS  bool
	loaded bool
}

// New returns an Env that starts from the OS environment.
func New() *Env {
	return &Env{Var: make(Var), strip: map[string]struct{}{}, useOS: true}
}

// Isolated returns an Env that ignores the OS environment.
func Isolated() *Env {
	e := New()
	e.useOS = false
	return e
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			base[k] = v
		}
	}
	e.mu.Lock()
	e.env = base
	e.loaded = true
	e.mu.Unlock()
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs applies "K=V" entries; malformed entries are skipped.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			e.Set(k, v)
		}
	}
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.Var, k)
}

// Strip marks keys that must never reach a child, whatever layer sets them.
func (e *Env) Strip(keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strip == nil {
		e.strip = map[string]struct{}{}
	}
	for _, k := range keys {
		e.strip[k] = struct{}{}
	}
}

// Merge composes the final environment list applying order:
// base = OS env (when enabled), then global Var overrides, then perJob
// ("K=V") overrides. ${VAR} references are expanded against the composed
// map (single pass, no recursion) and stripped keys are removed. The result
// is sorted by key.
func (e *Env) Merge(perJob []string) []string {
	if e.useOS {
		e.mu.RLock()
		loaded := e.loaded
		e.mu.RUnlock()
		if !loaded {
			e.FromOS()
		}
	}
	e.mu.RLock()
	m := make(Var, len(e.env)+len(e.Var)+len(perJob))
	if e.useOS {
		for k, v := range e.env {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	strip := make(map[string]struct{}, len(e.strip))
	for k := range e.strip {
		strip[k] = struct{}{}
	}
	e.mu.RUnlock()

	for _, kv := range perJob {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, drop := strip[k]; !drop {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// FromMap converts a map to sorted "K=V" pairs.
func FromMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// LoadFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Blank lines and lines starting with # are ignored.
func LoadFile(path string) (Var, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	m := make(Var)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, s.Err()
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} references; a bare $VAR is left untouched.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+2+j]])
		s = s[i+2+j+1:]
	}
	b.WriteString(s)
	return b.String()
}
