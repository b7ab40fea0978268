package process

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// Spec describes one OS process to launch. Command is executed directly,
// never through a shell, with Args passed verbatim.
type Spec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`      // full environment, KEY=VALUE
	WorkDir string   `json:"work_dir,omitempty"` // optional working dir
	Input   []byte   `json:"-"`                  // written to stdin, then stdin is closed
}

// BuildCommand constructs an *exec.Cmd from s, placing the child in
// its own process group so termination reaches its descendants.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd)
	return cmd
}

// AllowList holds the commands the supervisor is willing to launch.
// Bare names ("claude") match only bare commands resolved through PATH;
// entries containing a path separator match that exact cleaned path.
type AllowList struct {
	names map[string]struct{}
	paths map[string]struct{}
}

func NewAllowList(commands []string) AllowList {
	al := AllowList{names: map[string]struct{}{}, paths: map[string]struct{}{}}
	for _, c := range commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.ContainsRune(c, '/') {
			al.paths[filepath.Clean(c)] = struct{}{}
			continue
		}
		al.names[c] = struct{}{}
	}
	return al
}

// Permits reports whether command may be launched.
func (a AllowList) Permits(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	if strings.ContainsRune(command, '/') {
		_, ok := a.paths[filepath.Clean(command)]
		return ok
	}
	_, ok := a.names[command]
	return ok
}

// Len returns the number of allowed entries.
func (a AllowList) Len() int { return len(a.names) + len(a.paths) }
