package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFileRoundTrip(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "runnerd.pid")
	require.NoError(t, writePidFile(pidFile, os.Getpid()))

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(b)))

	require.NoError(t, removePidFile(pidFile))
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, removePidFile(""))
}

func TestChildArgsDropsDaemonFlags(t *testing.T) {
	in := []string{"serve", "--daemonize", "--pidfile", "/run/r.pid", "--logfile=/var/log/r.log", "--config", "c.toml", "x.toml"}
	assert.Equal(t, []string{"serve", "--config", "c.toml", "x.toml"}, childArgs(in))
	assert.Equal(t, []string{"serve"}, childArgs([]string{"serve", "--daemonize=true"}))
}

func TestServeFlagsRegistered(t *testing.T) {
	cmd := createServeCommand(&GlobalFlags{})
	for _, name := range []string{"daemonize", "pidfile", "logfile"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
