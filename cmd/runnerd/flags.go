package main

import "time"

// GlobalFlags are the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}

// SpawnFlags Flag structs to decouple cobra from logic for testing.
type SpawnFlags struct {
	JobID   string
	TaskID  string
	Input   string
	WorkDir string
	Env     []string
	Dialect string
	Wait    bool
}

type RunFlags struct {
	RunID   string
	Input   string
	WorkDir string
	Env     []string
	Dialect string
	Timeout time.Duration
	Wait    bool
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
