package manager

import "errors"

var (
	// ErrInvalidCommand is returned when the command is not on the allow-list.
	ErrInvalidCommand = errors.New("command not allowed")
	// ErrInvalidRequest covers malformed job IDs, work dirs and dialects.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicateJob is returned when the job ID is already tracked.
	ErrDuplicateJob = errors.New("job already running")
	// ErrSpawn is returned when the OS refused to start the process.
	ErrSpawn = errors.New("spawn failed")
	// ErrNotFound is returned for job IDs that are not tracked.
	ErrNotFound = errors.New("job not found")
	// ErrShuttingDown is returned for spawns after Shutdown began.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)
