package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fiercefairy/PortOS-sub006/pkg/client"
)

const defaultAPIURL = client.DefaultBaseURL

// waitPoll is how often --wait checks whether a job has finished.
var waitPoll = 200 * time.Millisecond

// command carries what every client subcommand needs.
type command struct {
	flags *GlobalFlags
	out   io.Writer
}

func (c command) client() *client.Client {
	cfg := client.Config{BaseURL: c.flags.APIUrl, Timeout: c.flags.APITimeout, Insecure: c.flags.Insecure}
	if c.flags.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: c.flags.CACert}
	}
	return client.New(cfg)
}

func (c command) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}

func (c command) Spawn(f SpawnFlags, argv []string) error {
	if len(argv) == 0 {
		return errors.New("command required after --")
	}
	env, err := parseEnv(f.Env)
	if err != nil {
		return err
	}
	input, err := readInput(f.Input)
	if err != nil {
		return err
	}
	ctx := context.Background()
	cl := c.client()
	res, err := cl.Spawn(ctx, client.SpawnRequest{
		JobID:   f.JobID,
		TaskID:  f.TaskID,
		Input:   input,
		WorkDir: f.WorkDir,
		Command: argv[0],
		Args:    argv[1:],
		Env:     env,
		Dialect: f.Dialect,
	})
	if err != nil {
		return err
	}
	if f.Wait {
		return c.waitAndPrint(ctx, cl, res.JobID)
	}
	return c.printJSON(res)
}

func (c command) Run(f RunFlags, argv []string) error {
	if len(argv) == 0 {
		return errors.New("command required after --")
	}
	env, err := parseEnv(f.Env)
	if err != nil {
		return err
	}
	input, err := readInput(f.Input)
	if err != nil {
		return err
	}
	ctx := context.Background()
	cl := c.client()
	res, err := cl.Run(ctx, client.RunRequest{
		RunID:     f.RunID,
		Command:   argv[0],
		Args:      argv[1:],
		Input:     input,
		WorkDir:   f.WorkDir,
		Env:       env,
		TimeoutMs: f.Timeout.Milliseconds(),
		Dialect:   f.Dialect,
	})
	if err != nil {
		return err
	}
	if f.Wait {
		return c.waitAndPrint(ctx, cl, res.RunID)
	}
	return c.printJSON(res)
}

// waitAndPrint polls until the job is no longer tracked, then prints its
// persisted output.
func (c command) waitAndPrint(ctx context.Context, cl *client.Client, id string) error {
	for {
		_, err := cl.Stats(ctx, id)
		if client.IsNotFound(err) {
			break
		}
		if err != nil {
			return err
		}
		time.Sleep(waitPoll)
	}
	out, err := cl.Output(ctx, id)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.out, out)
	return err
}

func (c command) Terminate(id string) error {
	if err := c.client().Terminate(context.Background(), id); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "terminating %s\n", id)
	return err
}

func (c command) Kill(id string) error {
	res, err := c.client().Kill(context.Background(), id)
	if err != nil {
		return err
	}
	return c.printJSON(res)
}

func (c command) TerminateAll() error {
	n, err := c.client().TerminateAll(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "terminating %d job(s)\n", n)
	return err
}

func (c command) List(asJSON bool) error {
	jobs, err := c.client().List(context.Background())
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(jobs)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "JOB\tKIND\tPID\tSTATE\tCPU%\tMEM(MB)\tRUNNING")
	for _, j := range jobs {
		st := j.OSState
		if j.Terminating {
			st += " (terminating)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f\t%.1f\t%s\n",
			j.JobID, j.Kind, j.PID, st, j.CPU, j.MemoryMB,
			(time.Duration(j.RunningTimeMs) * time.Millisecond).Round(time.Second))
	}
	return tw.Flush()
}

func (c command) Stats(id string) error {
	st, err := c.client().Stats(context.Background(), id)
	if err != nil {
		return err
	}
	return c.printJSON(st)
}

func (c command) Output(id string) error {
	out, err := c.client().Output(context.Background(), id)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.out, out)
	return err
}

func (c command) Health() error {
	h, err := c.client().Health(context.Background())
	if err != nil {
		return err
	}
	return c.printJSON(h)
}

// Events prints one JSON line per event until interrupted. When jobID is
// set only that job's events are shown.
func (c command) Events(ctx context.Context, jobID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	enc := json.NewEncoder(c.out)
	return c.client().Events(ctx, func(e client.Event) error {
		if jobID != "" && e.JobID != jobID {
			return nil
		}
		return enc.Encode(e)
	})
}

// parseEnv turns KEY=VALUE flags into a map.
func parseEnv(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
		}
		m[k] = v
	}
	return m, nil
}

// readInput returns s, or stdin when s is "-".
func readInput(s string) (string, error) {
	if s != "-" {
		return s, nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}
